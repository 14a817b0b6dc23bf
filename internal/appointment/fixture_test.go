package appointment

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/config"
	redisclient "github.com/DenTeeth/PDCMS-BE-sub001/internal/redis"
)

const (
	specClinical int64 = 8
	specOrtho    int64 = 2
)

var clinicLoc = time.FixedZone("ICT", 7*60*60)

// testClock is a settable clock shared by a Service and its test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store *MemoryStore
	svc   *Service
	clock *testClock

	services map[string]DentalService
}

func clinicTime(day, hour, minute int) time.Time {
	return time.Date(2030, time.January, day, hour, minute, 0, 0, clinicLoc)
}

// newFixture seeds a small clinic. Staff work 08:00-12:00 and 13:00-17:00 on
// 2 Jan 2030; the clock reads 1 Jan 2030 08:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := NewMemoryStore()
	clock := &testClock{now: clinicTime(1, 8, 0)}

	store.AddPatient(Patient{Code: "P001", FullName: "An Nguyen", Active: true})
	store.AddPatient(Patient{Code: "P002", FullName: "Binh Tran", Active: true})
	store.AddPatient(Patient{Code: "P003", FullName: "Chi Le", Active: true})
	store.AddPatient(Patient{Code: "P009", FullName: "Former Patient", Active: false})

	staff := []Employee{
		{Code: "D001", FullName: "Dr. Hoa", Active: true, SpecializationIDs: []int64{specClinical, specOrtho}},
		{Code: "D002", FullName: "Dr. Minh", Active: true, SpecializationIDs: []int64{specClinical}},
		{Code: "N001", FullName: "Nurse Lan", Active: true, SpecializationIDs: []int64{specClinical, specOrtho}},
		{Code: "N002", FullName: "Nurse Mai", Active: true, SpecializationIDs: []int64{specClinical, specOrtho}},
		{Code: "N003", FullName: "Nurse Thu", Active: true, SpecializationIDs: []int64{specClinical}},
		{Code: "E900", FullName: "Receptionist", Active: true},
		{Code: "D009", FullName: "Dr. Retired", Active: false, SpecializationIDs: []int64{specClinical, specOrtho}},
	}
	for _, e := range staff {
		emp := store.AddEmployee(e)
		for _, window := range [][2]int{{8, 12}, {13, 17}} {
			store.AddShift(Shift{
				EmployeeID: emp.ID,
				WorkDate:   time.Date(2030, time.January, 2, 0, 0, 0, 0, clinicLoc),
				StartTime:  clinicTime(2, window[0], 0),
				EndTime:    clinicTime(2, window[1], 0),
			})
		}
	}

	ortho := specOrtho
	services := map[string]DentalService{}
	for _, s := range []DentalService{
		{Code: "SV-CLEAN", Name: "Scaling", DurationMinutes: 30, Active: true},
		{Code: "SV-BRACE", Name: "Brace adjustment", DurationMinutes: 45, BufferMinutes: 15, SpecializationID: &ortho, Active: true},
		{Code: "SV-OLD", Name: "Retired service", DurationMinutes: 20, Active: false},
	} {
		services[s.Code] = store.AddService(s)
	}

	r1 := store.AddRoom(Room{Code: "R01", Name: "Chair 1", Active: true})
	r2 := store.AddRoom(Room{Code: "R02", Name: "Chair 2", Active: true})
	r3 := store.AddRoom(Room{Code: "R03", Name: "Chair 3", Active: true})
	r9 := store.AddRoom(Room{Code: "R09", Name: "Closed", Active: false})
	store.SetRoomServices(r1.ID, services["SV-CLEAN"].ID, services["SV-BRACE"].ID)
	store.SetRoomServices(r2.ID, services["SV-CLEAN"].ID)
	store.SetRoomServices(r3.ID, services["SV-CLEAN"].ID, services["SV-BRACE"].ID)
	store.SetRoomServices(r9.ID, services["SV-CLEAN"].ID)

	cfg := config.Config{ClinicLocation: clinicLoc, ClinicalSpecializationID: specClinical}
	svc := NewService(store, redisclient.NewLocalLocker(time.Second), cfg, WithClock(clock.Now))

	return &fixture{store: store, svc: svc, clock: clock, services: services}
}

// request returns a valid booking of P001 with D001 in R01 at 09:00 on 2 Jan.
func request() CreateRequest {
	return CreateRequest{
		PatientCode:  "P001",
		DoctorCode:   "D001",
		RoomCode:     "R01",
		ServiceCodes: []string{"SV-CLEAN"},
		StartTime:    "2030-01-02T09:00:00",
	}
}

func requireCode(t *testing.T, err error, want *Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want.Code)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code, err)
	}
}

func strPtr(s string) *string { return &s }
