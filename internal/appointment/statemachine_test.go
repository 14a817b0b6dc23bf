package appointment

import (
	"testing"
	"time"
)

var allStatuses = []AppointmentStatus{
	StatusScheduled, StatusCheckedIn, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow,
}

func TestValidateTransitionGraph(t *testing.T) {
	allowed := map[[2]AppointmentStatus]bool{
		{StatusScheduled, StatusCheckedIn}:  true,
		{StatusScheduled, StatusCancelled}:  true,
		{StatusScheduled, StatusNoShow}:     true,
		{StatusCheckedIn, StatusInProgress}: true,
		{StatusCheckedIn, StatusCancelled}:  true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusCancelled}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			err := ValidateTransition(from, to)
			if allowed[[2]AppointmentStatus{from, to}] {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
				}
				continue
			}
			requireCode(t, err, ErrInvalidStatusTransition)
		}
	}
}

func TestValidateTransitionUnknownStatus(t *testing.T) {
	requireCode(t, ValidateTransition(StatusScheduled, "ARCHIVED"), ErrInvalidStatus)
	requireCode(t, ValidateTransition(StatusScheduled, ""), ErrInvalidStatus)
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range allStatuses {
		want := s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, s.IsTerminal(), want)
		}
		if s.IsActive() == want {
			t.Errorf("%s.IsActive() = %v, want %v", s, s.IsActive(), !want)
		}
	}
	if AppointmentStatus("LOST").IsTerminal() {
		t.Error("unknown status must not be terminal")
	}
}

func TestApplyTransitionTimestamps(t *testing.T) {
	now := clinicTime(2, 9, 0)

	a := &Appointment{Status: StatusScheduled}
	applyTransition(a, StatusCheckedIn, now)
	if a.ActualStartTime != nil || a.ActualEndTime != nil {
		t.Fatal("check-in must not set actual times")
	}

	applyTransition(a, StatusInProgress, now)
	if a.ActualStartTime == nil || !a.ActualStartTime.Equal(now) {
		t.Fatalf("actual start = %v", a.ActualStartTime)
	}

	later := now.Add(40 * time.Minute)
	applyTransition(a, StatusCompleted, later)
	if a.ActualEndTime == nil || !a.ActualEndTime.Equal(later) {
		t.Fatalf("actual end = %v", a.ActualEndTime)
	}
	if !a.ActualStartTime.Equal(now) {
		t.Fatal("completion must not move the actual start")
	}
	if a.Status != StatusCompleted || !a.UpdatedAt.Equal(later) {
		t.Fatalf("status/updated = %s %s", a.Status, a.UpdatedAt)
	}

	c := &Appointment{Status: StatusInProgress}
	applyTransition(c, StatusCancelled, now)
	if c.ActualEndTime != nil {
		t.Fatal("cancellation must not set the actual end")
	}
}

func TestValidateReason(t *testing.T) {
	requireCode(t, validateReason(StatusCancelled, nil), ErrReasonCodeRequired)
	requireCode(t, validateReason(StatusCancelled, strPtr("")), ErrReasonCodeRequired)
	requireCode(t, validateReason(StatusCancelled, strPtr("WHATEVER")), ErrInvalidReasonCode)
	if err := validateReason(StatusCheckedIn, strPtr("WALK_IN")); err != nil {
		t.Errorf("free-form reason on check-in: %v", err)
	}

	for code := range validReasonCodes {
		if err := validateReason(StatusCancelled, strPtr(code)); err != nil {
			t.Errorf("reason %s: %v", code, err)
		}
	}
	if err := validateReason(StatusNoShow, nil); err != nil {
		t.Errorf("no-show without reason: %v", err)
	}
}
