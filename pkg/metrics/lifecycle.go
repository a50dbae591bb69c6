package metrics

import "github.com/prometheus/client_golang/prometheus"

// LifecycleMetrics counts lead state transitions and notification failures.
type LifecycleMetrics struct {
	transitions   *prometheus.CounterVec
	notifyFailure *prometheus.CounterVec
}

func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lead_transitions_total",
		Help:      "Lead lifecycle operations by outcome.",
	}, []string{"operation", "outcome"})
	notifyFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lead_notifications_failed_total",
		Help:      "Lead events that could not be delivered to a channel.",
	}, []string{"event"})
	reg.MustRegister(transitions, notifyFailure)
	return &LifecycleMetrics{transitions: transitions, notifyFailure: notifyFailure}
}

// ObserveTransition records the outcome of a lifecycle operation ("ok", "conflict", ...).
func (m *LifecycleMetrics) ObserveTransition(operation, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func (m *LifecycleMetrics) IncNotificationFailure(event string) {
	if m == nil || m.notifyFailure == nil {
		return
	}
	m.notifyFailure.WithLabelValues(normalizeLabel(event)).Inc()
}
