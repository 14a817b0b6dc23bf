package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Created()
	m.Created()
	m.Rejected("create", "ROOM_SLOT_TAKEN")
	m.Transition("SCHEDULED", "CHECKED_IN")
	m.Rescheduled()
	m.Observe("create", time.Now().Add(-10*time.Millisecond))

	if got := testutil.ToFloat64(m.created); got != 2 {
		t.Errorf("created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("create", "ROOM_SLOT_TAKEN")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("SCHEDULED", "CHECKED_IN")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rescheduled); got != 1 {
		t.Errorf("rescheduled = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Created()
	m.Rejected("create", "X")
	m.Transition("A", "B")
	m.Rescheduled()
	m.Observe("create", time.Now())
}
