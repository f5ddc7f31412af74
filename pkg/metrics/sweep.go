package metrics

import "github.com/prometheus/client_golang/prometheus"

// SweepMetrics counts event worker outcomes per event type.
type SweepMetrics struct {
	done       *prometheus.CounterVec
	retried    *prometheus.CounterVec
	deadLetter *prometheus.CounterVec
}

// NewSweepMetrics registers the sweep metrics on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	done := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_events_done",
		Help: "Events completed by the sweeper.",
	}, []string{"event_type"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_events_retried",
		Help: "Events left pending for another sweep.",
	}, []string{"event_type"})
	deadLetter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_events_dead_lettered",
		Help: "Events moved to the dead-letter table.",
	}, []string{"event_type"})
	reg.MustRegister(done, retried, deadLetter)
	return &SweepMetrics{
		done:       done,
		retried:    retried,
		deadLetter: deadLetter,
	}
}

// IncDone increments the completed counter for the event type.
func (m *SweepMetrics) IncDone(eventType string) {
	if m == nil || m.done == nil {
		return
	}
	m.done.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncRetried increments the retried counter for the event type.
func (m *SweepMetrics) IncRetried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDeadLettered increments the dead-letter counter for the event type.
func (m *SweepMetrics) IncDeadLettered(eventType string) {
	if m == nil || m.deadLetter == nil {
		return
	}
	m.deadLetter.WithLabelValues(normalizeLabel(eventType)).Inc()
}
