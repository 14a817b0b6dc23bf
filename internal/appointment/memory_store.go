package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Transactions run one at a time against
// a copy of the state which replaces the original only when fn succeeds.
// It backs the engine in tests and local tooling.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memState
	faults map[string]error
}

type memState struct {
	nextID int64

	patients     map[int64]Patient
	employees    map[int64]Employee
	rooms        map[int64]Room
	services     map[int64]DentalService
	roomServices map[int64][]int64
	shifts       []Shift

	appointments map[int64]Appointment
	apptServices map[int64][]int64
	participants map[int64][]Participant
	auditLogs    []AuditLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			patients:     make(map[int64]Patient),
			employees:    make(map[int64]Employee),
			rooms:        make(map[int64]Room),
			services:     make(map[int64]DentalService),
			roomServices: make(map[int64][]int64),
			appointments: make(map[int64]Appointment),
			apptServices: make(map[int64][]int64),
			participants: make(map[int64][]Participant),
		},
		faults: make(map[string]error),
	}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(ctx, &memRepository{st: work, faults: m.faults}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// FailOn makes every call of the named repository method return err. A nil
// err clears the fault.
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, method)
		return
	}
	m.faults[method] = err
}

// Seeding

func (m *MemoryStore) AddPatient(p Patient) Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.state.id()
	}
	m.state.patients[p.ID] = p
	return p
}

func (m *MemoryStore) AddEmployee(e Employee) Employee {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = m.state.id()
	}
	e.SpecializationIDs = append([]int64(nil), e.SpecializationIDs...)
	m.state.employees[e.ID] = e
	return e
}

func (m *MemoryStore) AddRoom(r Room) Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.state.id()
	}
	m.state.rooms[r.ID] = r
	return r
}

func (m *MemoryStore) AddService(s DentalService) DentalService {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.state.id()
	}
	m.state.services[s.ID] = s
	return s
}

func (m *MemoryStore) SetRoomServices(roomID int64, serviceIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.roomServices[roomID] = append([]int64(nil), serviceIDs...)
}

func (m *MemoryStore) AddShift(sh Shift) Shift {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sh.ID == 0 {
		sh.ID = m.state.id()
	}
	m.state.shifts = append(m.state.shifts, sh)
	return sh
}

// Appointments returns every stored appointment ordered by id.
func (m *MemoryStore) Appointments() []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Appointment, 0, len(m.state.appointments))
	for _, a := range m.state.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AuditLogCount returns the number of stored audit rows across appointments.
func (m *MemoryStore) AuditLogCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.auditLogs)
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// clone copies everything a transaction may write. Reference data is only
// changed by the seeding methods and is shared.
func (s *memState) clone() *memState {
	c := *s
	c.appointments = make(map[int64]Appointment, len(s.appointments))
	for id, a := range s.appointments {
		c.appointments[id] = a
	}
	c.apptServices = make(map[int64][]int64, len(s.apptServices))
	for id, ids := range s.apptServices {
		c.apptServices[id] = ids
	}
	c.participants = make(map[int64][]Participant, len(s.participants))
	for id, ps := range s.participants {
		c.participants[id] = ps
	}
	c.auditLogs = append([]AuditLog(nil), s.auditLogs...)
	return &c
}

type memRepository struct {
	st     *memState
	faults map[string]error
}

func (r *memRepository) fault(method string) error {
	return r.faults[method]
}

func (r *memRepository) GetPatientByCode(ctx context.Context, code string) (*Patient, error) {
	for _, p := range r.st.patients {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *memRepository) GetPatientByID(ctx context.Context, id int64) (*Patient, error) {
	p, ok := r.st.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepository) GetEmployeeByCode(ctx context.Context, code string) (*Employee, error) {
	for _, e := range r.st.employees {
		if e.Code == code {
			return &e, nil
		}
	}
	return nil, ErrEmployeeNotFound
}

func (r *memRepository) GetEmployeeByID(ctx context.Context, id int64) (*Employee, error) {
	e, ok := r.st.employees[id]
	if !ok {
		return nil, ErrEmployeeNotFound
	}
	return &e, nil
}

func (r *memRepository) GetRoomByCode(ctx context.Context, code string) (*Room, error) {
	for _, room := range r.st.rooms {
		if room.Code == code {
			return &room, nil
		}
	}
	return nil, ErrRoomNotFound
}

func (r *memRepository) GetRoomByID(ctx context.Context, id int64) (*Room, error) {
	room, ok := r.st.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

func (r *memRepository) GetServicesByCodes(ctx context.Context, codes []string) ([]DentalService, error) {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var out []DentalService
	for _, s := range r.st.services {
		if want[s.Code] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepository) GetRoomServiceIDs(ctx context.Context, roomID int64) ([]int64, error) {
	return append([]int64(nil), r.st.roomServices[roomID]...), nil
}

func (r *memRepository) ListShifts(ctx context.Context, employeeID int64, workDate time.Time) ([]Shift, error) {
	day := workDate.Format("2006-01-02")
	var out []Shift
	for _, sh := range r.st.shifts {
		if sh.EmployeeID == employeeID && sh.WorkDate.Format("2006-01-02") == day {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// LockResources is a no-op: the store already runs one transaction at a time.
func (r *memRepository) LockResources(ctx context.Context, keys []string) error {
	return r.fault("LockResources")
}

func (r *memRepository) GetAppointmentByCodeForUpdate(ctx context.Context, code string) (*Appointment, error) {
	return r.GetAppointmentByCode(ctx, code)
}

func (r *memRepository) FindOverlapping(ctx context.Context, q OverlapQuery) (*Appointment, error) {
	if err := r.fault("FindOverlapping"); err != nil {
		return nil, err
	}

	var found *Appointment
	for _, a := range r.st.appointments {
		if a.ID == q.ExcludeID || !a.Status.IsActive() || !Overlaps(a.StartTime, a.EndTime, q.Start, q.End) {
			continue
		}
		if !r.matches(a, q) {
			continue
		}
		if found == nil || a.StartTime.Before(found.StartTime) {
			match := a
			found = &match
		}
	}
	return found, nil
}

func (r *memRepository) matches(a Appointment, q OverlapQuery) bool {
	switch q.Scope {
	case ScopeRoom:
		return a.RoomID == q.ResourceID
	case ScopePatient:
		return a.PatientID == q.ResourceID
	case ScopeEmployee:
		if a.DoctorID == q.ResourceID {
			return true
		}
		for _, p := range r.st.participants[a.ID] {
			if p.EmployeeID == q.ResourceID {
				return true
			}
		}
	}
	return false
}

func (r *memRepository) MaxCodeWithPrefix(ctx context.Context, prefix string) (string, error) {
	last := ""
	for _, a := range r.st.appointments {
		if strings.HasPrefix(a.Code, prefix) && a.Code > last {
			last = a.Code
		}
	}
	return last, nil
}

func (r *memRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	if err := r.fault("InsertAppointment"); err != nil {
		return err
	}
	for _, existing := range r.st.appointments {
		if existing.Code == a.Code {
			return withf(ErrDuplicateCode, "appointment code %s already taken", a.Code)
		}
	}
	a.ID = r.st.id()
	r.st.appointments[a.ID] = *a
	return nil
}

func (r *memRepository) InsertServiceLinks(ctx context.Context, appointmentID int64, serviceIDs []int64) error {
	if err := r.fault("InsertServiceLinks"); err != nil {
		return err
	}
	r.st.apptServices[appointmentID] = append([]int64(nil), serviceIDs...)
	return nil
}

func (r *memRepository) InsertParticipants(ctx context.Context, participants []Participant) error {
	if err := r.fault("InsertParticipants"); err != nil {
		return err
	}
	for _, p := range participants {
		r.st.participants[p.AppointmentID] = append(r.st.participants[p.AppointmentID], p)
	}
	return nil
}

func (r *memRepository) UpdateAppointmentStatus(ctx context.Context, a *Appointment) error {
	if err := r.fault("UpdateAppointmentStatus"); err != nil {
		return err
	}
	stored, ok := r.st.appointments[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	stored.Status = a.Status
	stored.ActualStartTime = a.ActualStartTime
	stored.ActualEndTime = a.ActualEndTime
	stored.Notes = a.Notes
	stored.UpdatedAt = a.UpdatedAt
	r.st.appointments[a.ID] = stored
	return nil
}

func (r *memRepository) SetRescheduledTo(ctx context.Context, id, newID int64) error {
	if err := r.fault("SetRescheduledTo"); err != nil {
		return err
	}
	stored, ok := r.st.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	stored.RescheduledToAppointmentID = &newID
	r.st.appointments[id] = stored
	return nil
}

func (r *memRepository) InsertAuditLog(ctx context.Context, l *AuditLog) error {
	if err := r.fault("InsertAuditLog"); err != nil {
		return err
	}
	l.ID = r.st.id()
	r.st.auditLogs = append(r.st.auditLogs, *l)
	return nil
}

func (r *memRepository) GetAppointmentByCode(ctx context.Context, code string) (*Appointment, error) {
	for _, a := range r.st.appointments {
		if a.Code == code {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	a, ok := r.st.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepository) ListAppointmentServices(ctx context.Context, appointmentID int64) ([]DentalService, error) {
	ids := append([]int64(nil), r.st.apptServices[appointmentID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]DentalService, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.st.services[id])
	}
	return out, nil
}

func (r *memRepository) ListParticipants(ctx context.Context, appointmentID int64) ([]Participant, error) {
	out := append([]Participant(nil), r.st.participants[appointmentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (r *memRepository) ListAuditLogs(ctx context.Context, appointmentID int64) ([]AuditLog, error) {
	var out []AuditLog
	for _, l := range r.st.auditLogs {
		if l.AppointmentID == appointmentID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memRepository) FindOverdueScheduled(ctx context.Context, startedBefore time.Time, limit int) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.st.appointments {
		if a.Status == StatusScheduled && a.StartTime.Before(startedBefore) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
