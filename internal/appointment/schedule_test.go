package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

func TestParseStartTime(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2030-01-02T09:00:00+07:00", clinicTime(2, 9, 0), true},
		{"2030-01-02T02:00:00Z", clinicTime(2, 9, 0), true},
		{"2030-01-02T09:00:00", clinicTime(2, 9, 0), true},
		{"2030-01-02T09:00", clinicTime(2, 9, 0), true},
		{" 2030-01-02T09:00 ", clinicTime(2, 9, 0), true},
		{"2030-01-02", time.Time{}, false},
		{"09:00", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, err := ParseStartTime(tt.raw, clinicLoc)
		if !tt.ok {
			requireCode(t, err, ErrInvalidStartTime)
			continue
		}
		if err != nil {
			t.Errorf("ParseStartTime(%q): %v", tt.raw, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseStartTime(%q) = %s, want %s", tt.raw, got, tt.want)
		}
		if got.Location() != clinicLoc {
			t.Errorf("ParseStartTime(%q) location = %s, want clinic", tt.raw, got.Location())
		}
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	at := func(h, m int) time.Time { return clinicTime(2, h, m) }

	tests := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"identical", at(9, 0), at(9, 30), at(9, 0), at(9, 30), true},
		{"touching end to start", at(9, 0), at(9, 30), at(9, 30), at(10, 0), false},
		{"touching start to end", at(9, 30), at(10, 0), at(9, 0), at(9, 30), false},
		{"contained", at(9, 0), at(11, 0), at(9, 30), at(10, 0), true},
		{"one minute overlap", at(9, 0), at(9, 31), at(9, 30), at(10, 0), true},
		{"disjoint", at(8, 0), at(8, 30), at(9, 0), at(9, 30), false},
	}
	for _, tt := range tests {
		if got := Overlaps(tt.s1, tt.e1, tt.s2, tt.e2); got != tt.want {
			t.Errorf("%s: Overlaps = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// Overlaps must agree with a minute-by-minute check of shared occupancy and
// must be symmetric.
func TestOverlapsMatchesMinuteOccupancy(t *testing.T) {
	faker := gofakeit.New(42)
	base := clinicTime(2, 8, 0)

	for i := 0; i < 500; i++ {
		s1 := faker.IntRange(0, 120)
		e1 := s1 + faker.IntRange(1, 60)
		s2 := faker.IntRange(0, 120)
		e2 := s2 + faker.IntRange(1, 60)

		shared := false
		for m := s1; m < e1; m++ {
			if m >= s2 && m < e2 {
				shared = true
				break
			}
		}

		a1, b1 := base.Add(time.Duration(s1)*time.Minute), base.Add(time.Duration(e1)*time.Minute)
		a2, b2 := base.Add(time.Duration(s2)*time.Minute), base.Add(time.Duration(e2)*time.Minute)

		if got := Overlaps(a1, b1, a2, b2); got != shared {
			t.Fatalf("[%d,%d) vs [%d,%d): Overlaps = %v, occupancy says %v", s1, e1, s2, e2, got, shared)
		}
		if Overlaps(a1, b1, a2, b2) != Overlaps(a2, b2, a1, b1) {
			t.Fatalf("[%d,%d) vs [%d,%d): not symmetric", s1, e1, s2, e2)
		}
	}
}

func TestTotalDuration(t *testing.T) {
	services := []DentalService{
		{DurationMinutes: 30},
		{DurationMinutes: 45, BufferMinutes: 15},
		{DurationMinutes: 10, BufferMinutes: 5},
	}
	if got := TotalDuration(services); got != 105*time.Minute {
		t.Fatalf("TotalDuration = %s, want 1h45m", got)
	}
	if got := TotalDuration(nil); got != 0 {
		t.Fatalf("TotalDuration(nil) = %s, want 0", got)
	}

	start := clinicTime(2, 9, 0)
	if got := EndTime(start, services); !got.Equal(clinicTime(2, 10, 45)) {
		t.Fatalf("EndTime = %s", got)
	}
}

func TestShiftCoverageDoesNotStitchAdjacentShifts(t *testing.T) {
	store := NewMemoryStore()
	doc := store.AddEmployee(Employee{Code: "D100", Active: true, SpecializationIDs: []int64{specClinical}})
	day := time.Date(2030, time.January, 5, 0, 0, 0, 0, clinicLoc)
	store.AddShift(Shift{EmployeeID: doc.ID, WorkDate: day, StartTime: day.Add(8 * time.Hour), EndTime: day.Add(12 * time.Hour)})
	store.AddShift(Shift{EmployeeID: doc.ID, WorkDate: day, StartTime: day.Add(12 * time.Hour), EndTime: day.Add(16 * time.Hour)})

	v := NewShiftCoverageValidator(clinicLoc)
	res := &Resources{Doctor: &doc}

	tests := []struct {
		name       string
		start, end time.Time
		want       *Error
	}{
		{"inside morning", day.Add(9 * time.Hour), day.Add(10 * time.Hour), nil},
		{"exactly the afternoon", day.Add(12 * time.Hour), day.Add(16 * time.Hour), nil},
		{"across the seam", day.Add(11*time.Hour + 30*time.Minute), day.Add(12*time.Hour + 30*time.Minute), ErrShiftNotCovering},
		{"after hours", day.Add(16 * time.Hour), day.Add(17 * time.Hour), ErrShiftNotCovering},
		{"next day", day.Add(33 * time.Hour), day.Add(34 * time.Hour), ErrNotScheduled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.WithTx(context.Background(), func(ctx context.Context, repo Repository) error {
				return v.Check(ctx, repo, res, tt.start, tt.end)
			})
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Check: %v", err)
				}
				return
			}
			requireCode(t, err, tt.want)
		})
	}
}

func TestResourceLockKeysAreSorted(t *testing.T) {
	res := &Resources{
		Patient:      &Patient{ID: 3},
		Doctor:       &Employee{ID: 20},
		Room:         &Room{ID: 5},
		Participants: []*Employee{{ID: 11}},
	}
	got := ResourceLockKeys(res)
	want := []string{"employee:11", "employee:20", "patient:3", "room:5"}
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}
}
