package appointment

import (
	"time"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusCheckedIn  AppointmentStatus = "CHECKED_IN"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
	StatusNoShow     AppointmentStatus = "NO_SHOW"
)

// ActiveStatuses are the statuses that hold their doctor, room, patient and
// participants for the appointment window.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusCheckedIn, StatusInProgress}

func (s AppointmentStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCheckedIn, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type AuditAction string

const (
	ActionCreate       AuditAction = "CREATE"
	ActionStatusChange AuditAction = "STATUS_CHANGE"
	ActionCancel       AuditAction = "CANCEL"
)

type ParticipantRole string

const (
	RoleAssistant       ParticipantRole = "ASSISTANT"
	RoleSecondaryDoctor ParticipantRole = "SECONDARY_DOCTOR"
	RoleObserver        ParticipantRole = "OBSERVER"
)

// Reason codes accepted when an appointment is cancelled.
const (
	ReasonPatientRequest      = "PATIENT_REQUEST"
	ReasonDoctorUnavailable   = "DOCTOR_UNAVAILABLE"
	ReasonEquipmentFailure    = "EQUIPMENT_FAILURE"
	ReasonEmergency           = "EMERGENCY"
	ReasonOperationalRedirect = "OPERATIONAL_REDIRECT"
	ReasonOther               = "OTHER"
)

var validReasonCodes = map[string]bool{
	ReasonPatientRequest:      true,
	ReasonDoctorUnavailable:   true,
	ReasonEquipmentFailure:    true,
	ReasonEmergency:           true,
	ReasonOperationalRedirect: true,
	ReasonOther:               true,
}

// SystemActorID identifies the system or an administrator acting without an
// employee record.
const SystemActorID int64 = 0

// ActorIdentity is the already-authenticated caller on whose behalf the
// engine acts. It is resolved by the transport layer.
type ActorIdentity struct {
	ID int64
}

func SystemActor() ActorIdentity { return ActorIdentity{ID: SystemActorID} }

type Patient struct {
	ID       int64
	Code     string
	FullName string
	Phone    *string
	Active   bool
}

type Employee struct {
	ID                int64
	Code              string
	FullName          string
	Active            bool
	SpecializationIDs []int64
}

func (e *Employee) HasSpecialization(id int64) bool {
	for _, s := range e.SpecializationIDs {
		if s == id {
			return true
		}
	}
	return false
}

type Room struct {
	ID     int64
	Code   string
	Name   string
	Active bool
}

type DentalService struct {
	ID               int64
	Code             string
	Name             string
	DurationMinutes  int
	BufferMinutes    int
	SpecializationID *int64
	Active           bool
}

// Shift is a declared working interval of one employee.
type Shift struct {
	ID         int64
	EmployeeID int64
	WorkDate   time.Time
	StartTime  time.Time
	EndTime    time.Time
}

type Appointment struct {
	ID                         int64
	Code                       string
	PatientID                  int64
	DoctorID                   int64
	RoomID                     int64
	StartTime                  time.Time
	EndTime                    time.Time
	ExpectedDurationMinutes    int
	ActualStartTime            *time.Time
	ActualEndTime              *time.Time
	Status                     AppointmentStatus
	Notes                      string
	CreatedBy                  int64
	RescheduledToAppointmentID *int64
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

type Participant struct {
	AppointmentID int64
	EmployeeID    int64
	Role          ParticipantRole
}

type AuditLog struct {
	ID            int64
	AppointmentID int64
	ActionType    AuditAction
	OldStatus     *AppointmentStatus
	NewStatus     *AppointmentStatus
	ReasonCode    *string
	Notes         string
	PerformedBy   int64
	CreatedAt     time.Time
}

type PatientSummary struct {
	Code     string  `json:"code"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone,omitempty"`
}

type EmployeeSummary struct {
	Code     string `json:"code"`
	FullName string `json:"full_name"`
}

type RoomSummary struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type ServiceSummary struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferMinutes   int    `json:"buffer_minutes"`
}

type ParticipantSummary struct {
	Code     string          `json:"code"`
	FullName string          `json:"full_name"`
	Role     ParticipantRole `json:"role"`
}

// AppointmentDetail is the hydrated view returned by every engine operation.
type AppointmentDetail struct {
	Code               string               `json:"code"`
	Status             AppointmentStatus    `json:"status"`
	StartTime          time.Time            `json:"start_time"`
	EndTime            time.Time            `json:"end_time"`
	DurationMinutes    int                  `json:"duration_minutes"`
	ActualStartTime    *time.Time           `json:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time           `json:"actual_end_time,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	CreatedBy          int64                `json:"created_by"`
	Patient            PatientSummary       `json:"patient"`
	Doctor             EmployeeSummary      `json:"doctor"`
	Room               RoomSummary          `json:"room"`
	Services           []ServiceSummary     `json:"services"`
	Participants       []ParticipantSummary `json:"participants"`
	RescheduledToCode  *string              `json:"rescheduled_to_code,omitempty"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
}

type CreateRequest struct {
	PatientCode      string
	DoctorCode       string
	RoomCode         string
	ServiceCodes     []string
	ParticipantCodes []string
	StartTime        string
	Notes            string
}

type UpdateStatusRequest struct {
	Status     AppointmentStatus
	ReasonCode *string
	Notes      *string
}

type RescheduleRequest struct {
	NewStartTime        string
	NewDoctorCode       string
	NewRoomCode         string
	NewParticipantCodes []string
	ReasonCode          string
	CancelNotes         *string
}

type RescheduleResult struct {
	Cancelled *AppointmentDetail `json:"cancelled_appointment"`
	Created   *AppointmentDetail `json:"new_appointment"`
}
