package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	IngestCycles    prometheus.Counter
	EmailsProcessed prometheus.Counter
	UrgentEmails    prometheus.Counter
	OracleCalls     prometheus.Counter
	OracleFailures  prometheus.Counter
	IngestDuration  prometheus.Histogram
	StoredEmails    prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		IngestCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_triage_ingest_cycles_total",
			Help: "Total number of ingestion cycles",
		}),
		EmailsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_triage_emails_processed_total",
			Help: "Total number of emails normalized, analyzed and drafted",
		}),
		UrgentEmails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_triage_urgent_emails_total",
			Help: "Total number of emails classified as urgent",
		}),
		OracleCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_triage_oracle_calls_total",
			Help: "Total number of external oracle calls attempted",
		}),
		OracleFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_triage_oracle_failures_total",
			Help: "Total number of oracle calls that failed and degraded to heuristics",
		}),
		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "support_triage_ingest_duration_seconds",
			Help:    "Time spent per ingestion cycle",
			Buckets: prometheus.DefBuckets,
		}),
		StoredEmails: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "support_triage_stored_emails",
			Help: "Number of email records returned by the last dashboard fetch",
		}),
	}
}
