package appointment

import (
	"time"
)

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
	StatusNoShow:     nil,
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s AppointmentStatus) []AppointmentStatus {
	return allowedTransitions[s]
}

func (s AppointmentStatus) IsTerminal() bool {
	return s.Valid() && len(allowedTransitions[s]) == 0
}

// ValidateTransition checks one edge of the status graph.
func ValidateTransition(from, to AppointmentStatus) error {
	if !to.Valid() {
		return withf(ErrInvalidStatus, "unknown status %q", to)
	}
	if from == to {
		return withf(ErrInvalidStatusTransition, "appointment is already %s", from)
	}
	allowed := allowedTransitions[from]
	for _, a := range allowed {
		if a == to {
			return nil
		}
	}
	if len(allowed) == 0 {
		return withf(ErrInvalidStatusTransition, "%s is terminal, cannot move to %s", from, to)
	}
	return withf(ErrInvalidStatusTransition, "cannot move from %s to %s, allowed: %v", from, to, allowed)
}

// applyTransition sets the status and the timestamp it implies. Check-in does
// not start treatment, so only IN_PROGRESS and COMPLETED touch actual times.
func applyTransition(a *Appointment, to AppointmentStatus, now time.Time) {
	from := a.Status
	switch {
	case from == StatusCheckedIn && to == StatusInProgress:
		a.ActualStartTime = &now
	case from == StatusInProgress && to == StatusCompleted:
		a.ActualEndTime = &now
	}
	a.Status = to
	a.UpdatedAt = now
}

// validateReason only constrains cancellations. Other transitions record
// whatever reason the caller sent.
func validateReason(to AppointmentStatus, reason *string) error {
	if to != StatusCancelled {
		return nil
	}
	if reason == nil || *reason == "" {
		return ErrReasonCodeRequired
	}
	if !validReasonCodes[*reason] {
		return withf(ErrInvalidReasonCode, "unknown reason code %q", *reason)
	}
	return nil
}

func statusPtr(s AppointmentStatus) *AppointmentStatus { return &s }
