package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the booking engine counters. A nil *Metrics records nothing.
type Metrics struct {
	created     prometheus.Counter
	rejected    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	rescheduled prometheus.Counter
	duration    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "created_total",
			Help:      "Appointments created.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "rejected_total",
			Help:      "Requests rejected with a business error, by error code.",
		}, []string{"operation", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "status_transitions_total",
			Help:      "Applied status transitions.",
		}, []string{"from", "to"}),
		rescheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "rescheduled_total",
			Help:      "Appointments cancelled and replaced by a reschedule.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations including the transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.created, m.rejected, m.transitions, m.rescheduled, m.duration)
	return m
}

func (m *Metrics) Created() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) Rejected(operation, code string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Rescheduled() {
	if m == nil {
		return
	}
	m.rescheduled.Inc()
}

func (m *Metrics) Observe(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
