package appointment

import (
	"context"
	"time"
)

// ConflictScope selects which column an overlap scan matches the resource on.
type ConflictScope int

const (
	ScopeRoom ConflictScope = iota + 1
	ScopePatient
	// ScopeEmployee matches the employee as primary doctor or as participant.
	ScopeEmployee
)

func (s ConflictScope) String() string {
	switch s {
	case ScopeRoom:
		return "room"
	case ScopePatient:
		return "patient"
	case ScopeEmployee:
		return "employee"
	}
	return "unknown"
}

// OverlapQuery describes one conflict scan. The window is half-open.
type OverlapQuery struct {
	Scope      ConflictScope
	ResourceID int64
	Start      time.Time
	End        time.Time
	// ExcludeID skips one appointment, zero means none.
	ExcludeID int64
}

// Repository contains all DB interactions needed by the engine. Every method
// runs inside the transaction the Store opened for it.
type Repository interface {
	// Reference data
	GetPatientByCode(ctx context.Context, code string) (*Patient, error)
	GetPatientByID(ctx context.Context, id int64) (*Patient, error)
	GetEmployeeByCode(ctx context.Context, code string) (*Employee, error)
	GetEmployeeByID(ctx context.Context, id int64) (*Employee, error)
	GetRoomByCode(ctx context.Context, code string) (*Room, error)
	GetRoomByID(ctx context.Context, id int64) (*Room, error)
	GetServicesByCodes(ctx context.Context, codes []string) ([]DentalService, error)
	GetRoomServiceIDs(ctx context.Context, roomID int64) ([]int64, error)
	ListShifts(ctx context.Context, employeeID int64, workDate time.Time) ([]Shift, error)

	// Locking
	LockResources(ctx context.Context, keys []string) error
	GetAppointmentByCodeForUpdate(ctx context.Context, code string) (*Appointment, error)

	// For conflict checks; returns nil, nil when nothing overlaps
	FindOverlapping(ctx context.Context, q OverlapQuery) (*Appointment, error)

	// Creation and updates
	MaxCodeWithPrefix(ctx context.Context, prefix string) (string, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	InsertServiceLinks(ctx context.Context, appointmentID int64, serviceIDs []int64) error
	InsertParticipants(ctx context.Context, participants []Participant) error
	UpdateAppointmentStatus(ctx context.Context, a *Appointment) error
	SetRescheduledTo(ctx context.Context, id, newID int64) error
	InsertAuditLog(ctx context.Context, l *AuditLog) error

	// Reads for detail views
	GetAppointmentByCode(ctx context.Context, code string) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	ListAppointmentServices(ctx context.Context, appointmentID int64) ([]DentalService, error)
	ListParticipants(ctx context.Context, appointmentID int64) ([]Participant, error)
	ListAuditLogs(ctx context.Context, appointmentID int64) ([]AuditLog, error)

	// No-show worker
	FindOverdueScheduled(ctx context.Context, startedBefore time.Time, limit int) ([]Appointment, error)
}

// Store opens transactions. fn's error rolls everything back; a nil return
// commits.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
