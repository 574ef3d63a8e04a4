package service

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// IngestMetrics counts ingested sensor payloads by type tag and outcome.
type IngestMetrics struct {
	payloads *prometheus.CounterVec
}

// NewIngestMetrics registers the ingest counters with reg.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		payloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brewery",
			Subsystem: "ingest",
			Name:      "payloads_total",
			Help:      "Sensor payloads processed, by type tag and outcome.",
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(m.payloads)
	return m
}

func (m *IngestMetrics) observe(tag, outcome string) {
	if m == nil {
		return
	}
	if _, ok := ingestPlans[tag]; !ok {
		tag = "unknown"
	}
	m.payloads.WithLabelValues(tag, outcome).Inc()
}
