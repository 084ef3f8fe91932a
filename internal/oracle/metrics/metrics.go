// Package metrics holds Prometheus metrics for the query oracle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Queries             *prometheus.CounterVec
	AnonymityRejections prometheus.Counter
	Decryptions         prometheus.Counter
	ScanSize            prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Queries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dataledger_oracle_queries_total",
			Help: "Executed queries by kind.",
		}, []string{"kind"}),
		AnonymityRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_oracle_anonymity_rejections_total",
			Help: "Individual queries whose id list was withheld by the k-anonymity gate.",
		}),
		Decryptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataledger_oracle_decryptions_total",
			Help: "Aggregate results decrypted via the callback path.",
		}),
		ScanSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dataledger_oracle_scan_records",
			Help:    "Records scanned per query.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		}),
	}
}

func (m *Metrics) ObserveQuery(kind string, scanned int) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(kind).Inc()
	m.ScanSize.Observe(float64(scanned))
}

func (m *Metrics) ObserveAnonymityRejection() {
	if m == nil {
		return
	}
	m.AnonymityRejections.Inc()
}

func (m *Metrics) ObserveDecryption() {
	if m == nil {
		return
	}
	m.Decryptions.Inc()
}
