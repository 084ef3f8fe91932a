// Package metrics holds Prometheus metrics for the settlement module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Distributions  prometheus.Counter
	DistributedWei prometheus.Counter
	DustWei        prometheus.Counter
	Withdrawals    prometheus.Counter
	WithdrawnWei   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Distributions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_settlement_distributions_total",
			Help: "Total accepted fee distributions.",
		}),
		DistributedWei: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_settlement_credited_wei_total",
			Help: "Total wei credited to contributor balances.",
		}),
		DustWei: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_settlement_dust_wei_total",
			Help: "Total integer-division dust folded into first owners.",
		}),
		Withdrawals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_settlement_withdrawals_total",
			Help: "Total successful owner withdrawals.",
		}),
		WithdrawnWei: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_settlement_withdrawn_wei_total",
			Help: "Total wei paid out to owners.",
		}),
	}
}

func (m *Metrics) ObserveDistribution(creditedWei, dustWei uint64) {
	if m == nil {
		return
	}
	m.Distributions.Inc()
	m.DistributedWei.Add(float64(creditedWei))
	m.DustWei.Add(float64(dustWei))
}

func (m *Metrics) ObserveWithdrawal(amountWei uint64) {
	if m == nil {
		return
	}
	m.Withdrawals.Inc()
	m.WithdrawnWei.Add(float64(amountWei))
}
