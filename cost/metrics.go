package cost

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	rejectionPreflight = "preflight"
	rejectionRecord    = "record"
)

// Metrics exports the tracker's state to Prometheus.
//
// Metrics:
//   - eventanalytics_query_bytes_processed_total: bytes processed by recorded queries
//   - eventanalytics_queries_total: number of recorded queries
//   - eventanalytics_query_bytes_processed: bytes processed per query (histogram)
//   - eventanalytics_budget_rejections_total: queries refused by the budget, by stage
//   - eventanalytics_budget_cumulative_bytes: current cumulative bytes of the tracker
//   - eventanalytics_budget_bytes: the configured budget, 0 if unlimited
type Metrics struct {
	bytesProcessedTotal prometheus.Counter
	queriesTotal        prometheus.Counter
	bytesPerQuery       prometheus.Histogram
	rejectionsTotal     *prometheus.CounterVec
	cumulativeBytes     prometheus.Gauge
	budgetBytes         prometheus.Gauge
}

// NewMetrics creates and registers the cost metrics with the given registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	const namespace = "eventanalytics"

	metrics := &Metrics{
		bytesProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_bytes_processed_total",
			Help:      "Total bytes processed by recorded analytical queries",
		}),
		queriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Number of analytical queries recorded by the cost tracker",
		}),
		bytesPerQuery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_bytes_processed",
			Help:      "Bytes processed per analytical query",
			// 1 MiB to 1 TiB
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 11),
		}),
		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_rejections_total",
				Help:      "Queries refused because they would exceed the budget",
			},
			[]string{"stage"},
		),
		cumulativeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_cumulative_bytes",
			Help:      "Cumulative bytes processed since the tracker was created or reset",
		}),
		budgetBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_bytes",
			Help:      "Configured query budget in bytes, 0 if unlimited",
		}),
	}

	registry.MustRegister(
		metrics.bytesProcessedTotal,
		metrics.queriesTotal,
		metrics.bytesPerQuery,
		metrics.rejectionsTotal,
		metrics.cumulativeBytes,
		metrics.budgetBytes,
	)

	return metrics
}

// The methods below are no-ops on a nil *Metrics, so the tracker can be used without metrics.

func (metrics *Metrics) recordQuery(bytes int64, cumulative int64) {
	if metrics == nil {
		return
	}
	metrics.bytesProcessedTotal.Add(float64(bytes))
	metrics.queriesTotal.Inc()
	metrics.bytesPerQuery.Observe(float64(bytes))
	metrics.cumulativeBytes.Set(float64(cumulative))
}

func (metrics *Metrics) recordRejection(stage string) {
	if metrics == nil {
		return
	}
	metrics.rejectionsTotal.WithLabelValues(stage).Inc()
}

func (metrics *Metrics) setCumulative(cumulative int64) {
	if metrics == nil {
		return
	}
	metrics.cumulativeBytes.Set(float64(cumulative))
}

func (metrics *Metrics) setBudget(budget int64) {
	if metrics == nil {
		return
	}
	metrics.budgetBytes.Set(float64(budget))
}
