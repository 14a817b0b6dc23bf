package appointment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const windowLayout = "2006-01-02 15:04"

// localLayouts are accepted when the caller sends a wall clock time without
// an offset; they are read in the clinic location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseStartTime reads an ISO 8601 timestamp. Timestamps without an offset
// are interpreted in loc.
func ParseStartTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, withf(ErrInvalidStartTime, "start time %q is not ISO 8601", raw)
}

// Overlaps reports whether the half-open windows [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// TotalDuration is the sum of duration plus buffer over all services.
func TotalDuration(services []DentalService) time.Duration {
	minutes := 0
	for _, s := range services {
		minutes += s.DurationMinutes + s.BufferMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// EndTime returns the end of an appointment starting at start with services.
func EndTime(start time.Time, services []DentalService) time.Time {
	return start.Add(TotalDuration(services))
}

// ShiftCoverageValidator requires one declared shift to contain the whole
// window for each clinical actor. Adjacent shifts are not stitched together.
type ShiftCoverageValidator struct {
	loc *time.Location
}

func NewShiftCoverageValidator(loc *time.Location) *ShiftCoverageValidator {
	return &ShiftCoverageValidator{loc: loc}
}

func (v *ShiftCoverageValidator) Check(ctx context.Context, repo Repository, res *Resources, start, end time.Time) error {
	if err := v.checkEmployee(ctx, repo, res.Doctor, "doctor", start, end); err != nil {
		return err
	}
	for _, p := range res.Participants {
		if err := v.checkEmployee(ctx, repo, p, "participant", start, end); err != nil {
			return err
		}
	}
	return nil
}

func (v *ShiftCoverageValidator) checkEmployee(ctx context.Context, repo Repository, e *Employee, role string, start, end time.Time) error {
	local := start.In(v.loc)
	workDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, v.loc)

	shifts, err := repo.ListShifts(ctx, e.ID, workDate)
	if err != nil {
		return fmt.Errorf("load shifts for %s %s: %w", role, e.Code, err)
	}
	if len(shifts) == 0 {
		return withf(ErrNotScheduled, "%s %q has no shift on %s", role, e.Code, workDate.Format("2006-01-02"))
	}
	for _, sh := range shifts {
		if !sh.StartTime.After(start) && !sh.EndTime.Before(end) {
			return nil
		}
	}
	return withf(ErrShiftNotCovering, "no shift of %s %q covers %s - %s",
		role, e.Code, start.In(v.loc).Format(windowLayout), end.In(v.loc).Format("15:04"))
}

// ConflictDetector rejects a window that overlaps an active appointment of
// the same doctor, room, patient or participant. The first violation wins.
type ConflictDetector struct {
	loc *time.Location
}

func NewConflictDetector(loc *time.Location) *ConflictDetector {
	return &ConflictDetector{loc: loc}
}

func (d *ConflictDetector) Check(ctx context.Context, repo Repository, res *Resources, start, end time.Time, excludeID int64) error {
	q := OverlapQuery{Start: start, End: end, ExcludeID: excludeID}

	// A doctor assisting elsewhere is as busy as one treating elsewhere.
	q.Scope, q.ResourceID = ScopeEmployee, res.Doctor.ID
	if err := d.scan(ctx, repo, q, ErrEmployeeSlotTaken, "doctor", res.Doctor.Code); err != nil {
		return err
	}

	q.Scope, q.ResourceID = ScopeRoom, res.Room.ID
	if err := d.scan(ctx, repo, q, ErrRoomSlotTaken, "room", res.Room.Code); err != nil {
		return err
	}

	q.Scope, q.ResourceID = ScopePatient, res.Patient.ID
	if err := d.scan(ctx, repo, q, ErrPatientHasConflict, "patient", res.Patient.Code); err != nil {
		return err
	}

	for _, p := range res.Participants {
		q.Scope, q.ResourceID = ScopeEmployee, p.ID
		if err := d.scan(ctx, repo, q, ErrParticipantSlotTaken, "participant", p.Code); err != nil {
			return err
		}
	}
	return nil
}

func (d *ConflictDetector) scan(ctx context.Context, repo Repository, q OverlapQuery, sentinel *Error, role, code string) error {
	existing, err := repo.FindOverlapping(ctx, q)
	if err != nil {
		return fmt.Errorf("scan %s conflicts: %w", q.Scope, err)
	}
	if existing == nil {
		return nil
	}
	return withf(sentinel, "%s %q is booked by %s from %s to %s",
		role, code, existing.Code,
		existing.StartTime.In(d.loc).Format(windowLayout),
		existing.EndTime.In(d.loc).Format("15:04"))
}

// ResourceLockKeys lists the lock keys guarding a booking, sorted so that
// concurrent bookings always acquire them in the same order.
func ResourceLockKeys(res *Resources) []string {
	keys := []string{
		fmt.Sprintf("employee:%d", res.Doctor.ID),
		fmt.Sprintf("room:%d", res.Room.ID),
		fmt.Sprintf("patient:%d", res.Patient.ID),
	}
	for _, p := range res.Participants {
		keys = append(keys, fmt.Sprintf("employee:%d", p.ID))
	}
	sort.Strings(keys)
	return keys
}
