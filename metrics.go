package segmentz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts facade activity. A nil *Metrics records nothing.
//
// Metric names:
//   - segmentz_subsegments_started_total{namespace}
//   - segmentz_subsegments_ended_total{namespace}
//   - segmentz_writes_without_subsegment_total{operation}
//
// The last one exposes instrumentation gaps: annotation or metadata writes
// made where no subsegment was current, e.g. on a goroutine that was never
// re-seeded with an entity.
type Metrics struct {
	started  *prometheus.CounterVec
	ended    *prometheus.CounterVec
	orphaned *prometheus.CounterVec
}

// NewMetrics registers the facade counters with reg.
// A nil reg registers with the default prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segmentz",
			Name:      "subsegments_started_total",
			Help:      "Total number of subsegments opened through the facade",
		}, []string{"namespace"}),
		ended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segmentz",
			Name:      "subsegments_ended_total",
			Help:      "Total number of subsegments closed through the facade",
		}, []string{"namespace"}),
		orphaned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segmentz",
			Name:      "writes_without_subsegment_total",
			Help:      "Total number of annotation and metadata writes with no current subsegment",
		}, []string{"operation"}),
	}
}

func (m *Metrics) subsegmentStarted(namespace string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(namespace).Inc()
}

func (m *Metrics) subsegmentEnded(namespace string) {
	if m == nil {
		return
	}
	m.ended.WithLabelValues(namespace).Inc()
}

func (m *Metrics) writeWithoutSubsegment(operation string) {
	if m == nil {
		return
	}
	m.orphaned.WithLabelValues(operation).Inc()
}
