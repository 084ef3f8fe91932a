// Package metrics holds Prometheus metrics for the verification registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Deposits   prometheus.Counter
	StakedWei  prometheus.Counter
	Scores     prometheus.Histogram
	Disputes   prometheus.Counter
	Slashes    prometheus.Counter
	SlashedWei prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Deposits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_verification_deposits_total",
			Help: "Accepted stake deposits.",
		}),
		StakedWei: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_verification_staked_wei_total",
			Help: "Total wei deposited as verification stake.",
		}),
		Scores: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dataledger_verification_confidence_score",
			Help:    "Submitted confidence scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		Disputes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_verification_disputes_total",
			Help: "Opened disputes.",
		}),
		Slashes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_verification_slashes_total",
			Help: "Confirmed disputes ending in a slash.",
		}),
		SlashedWei: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_verification_slashed_wei_total",
			Help: "Total wei forfeited to slashing.",
		}),
	}
}

func (m *Metrics) ObserveDeposit(amountWei uint64) {
	if m == nil {
		return
	}
	m.Deposits.Inc()
	m.StakedWei.Add(float64(amountWei))
}

func (m *Metrics) ObserveScore(score int) {
	if m == nil {
		return
	}
	m.Scores.Observe(float64(score))
}

func (m *Metrics) ObserveDispute() {
	if m == nil {
		return
	}
	m.Disputes.Inc()
}

func (m *Metrics) ObserveSlash(amountWei uint64) {
	if m == nil {
		return
	}
	m.Slashes.Inc()
	m.SlashedWei.Add(float64(amountWei))
}
