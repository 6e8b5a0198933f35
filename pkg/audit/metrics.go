package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts produced, skipped and lost audit records.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Records         *prometheus.CounterVec
	Skipped         *prometheus.CounterVec
	CaptureFailures *prometheus.CounterVec
}

// NewMetrics registers the audit counters with reg.
// A nil reg registers with the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditkit_records_total",
			Help: "Total number of audit records stored",
		}, []string{"event", "item_type"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditkit_skipped_total",
			Help: "Total number of mutations that produced no audit record",
		}, []string{"reason"}),
		CaptureFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditkit_capture_failures_total",
			Help: "Total number of create and destroy records that could not be stored",
		}, []string{"event"}),
	}
}

func (m *Metrics) recorded(event Event, itemType string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(event.String(), itemType).Inc()
}

func (m *Metrics) skipped(reason string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) captureFailed(event Event) {
	if m == nil {
		return
	}
	m.CaptureFailures.WithLabelValues(event.String()).Inc()
}
