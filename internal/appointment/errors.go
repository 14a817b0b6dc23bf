package appointment

import (
	"fmt"
)

// Kind groups error codes so callers can map them to a transport status
// without knowing every code.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindIneligible
	KindPrecondition
	KindConflict
	KindStateMachine
	KindAuth
)

// Error is a business failure with a stable machine-readable code.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// withf returns a copy of a sentinel carrying a request specific message.
func withf(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Code:    sentinel.Code,
		Kind:    sentinel.Kind,
		Message: fmt.Sprintf(format, args...),
	}
}

func newError(code string, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

var (
	ErrPatientNotFound     = newError("PATIENT_NOT_FOUND", KindNotFound, "patient not found")
	ErrDoctorNotFound      = newError("DOCTOR_NOT_FOUND", KindNotFound, "doctor not found")
	ErrRoomNotFound        = newError("ROOM_NOT_FOUND", KindNotFound, "room not found")
	ErrServiceNotFound     = newError("SERVICE_NOT_FOUND", KindNotFound, "service not found")
	ErrParticipantNotFound = newError("PARTICIPANT_NOT_FOUND", KindNotFound, "participant not found")
	ErrAppointmentNotFound = newError("APPOINTMENT_NOT_FOUND", KindNotFound, "appointment not found")

	// Returned by repositories for employee lookups; the validator renames it
	// to the doctor or participant variant.
	ErrEmployeeNotFound = newError("EMPLOYEE_NOT_FOUND", KindNotFound, "employee not found")
)

var (
	ErrPatientInactive     = newError("PATIENT_INACTIVE", KindIneligible, "patient is inactive")
	ErrDoctorInactive      = newError("DOCTOR_INACTIVE", KindIneligible, "doctor is inactive")
	ErrRoomInactive        = newError("ROOM_INACTIVE", KindIneligible, "room is inactive")
	ErrServiceInactive     = newError("SERVICE_INACTIVE", KindIneligible, "service is inactive")
	ErrParticipantInactive = newError("PARTICIPANT_INACTIVE", KindIneligible, "participant is inactive")
	ErrNotMedicalStaff     = newError("NOT_MEDICAL_STAFF", KindIneligible, "employee is not medical staff")
	ErrNotQualified        = newError("NOT_QUALIFIED", KindIneligible, "employee lacks required specializations")
	ErrRoomNotCompatible   = newError("ROOM_NOT_COMPATIBLE", KindIneligible, "room is not certified for the requested services")
)

var (
	ErrServicesRequired      = newError("SERVICES_REQUIRED", KindPrecondition, "at least one service is required")
	ErrInvalidParticipant    = newError("INVALID_PARTICIPANT", KindPrecondition, "invalid participant")
	ErrInvalidStartTime      = newError("INVALID_START_TIME", KindPrecondition, "start time is not a valid timestamp")
	ErrStartTimeInPast       = newError("START_TIME_IN_PAST", KindPrecondition, "start time must be in the future")
	ErrNotScheduled          = newError("NOT_SCHEDULED", KindPrecondition, "employee has no shift on that date")
	ErrShiftNotCovering      = newError("SHIFT_NOT_COVERING", KindPrecondition, "no shift covers the appointment window")
	ErrCodeSequenceExhausted = newError("CODE_SEQUENCE_EXHAUSTED", KindPrecondition, "no appointment codes left for that date")
)

var (
	ErrEmployeeSlotTaken          = newError("EMPLOYEE_SLOT_TAKEN", KindConflict, "doctor already has an appointment in this window")
	ErrRoomSlotTaken              = newError("ROOM_SLOT_TAKEN", KindConflict, "room is already booked in this window")
	ErrPatientHasConflict         = newError("PATIENT_HAS_CONFLICT", KindConflict, "patient already has an appointment in this window")
	ErrParticipantSlotTaken       = newError("PARTICIPANT_SLOT_TAKEN", KindConflict, "participant is busy in this window")
	ErrInvalidStatusForReschedule = newError("INVALID_STATUS_FOR_RESCHEDULE", KindConflict, "appointment cannot be rescheduled in its current status")
	ErrBookingInProgress          = newError("BOOKING_IN_PROGRESS", KindConflict, "another booking for the same resources is in progress, please retry")
	ErrDuplicateCode              = newError("DUPLICATE_APPOINTMENT_CODE", KindConflict, "appointment code already taken, please retry")
)

var (
	ErrInvalidStatusTransition = newError("INVALID_STATUS_TRANSITION", KindStateMachine, "invalid status transition")
	ErrInvalidStatus           = newError("INVALID_STATUS", KindStateMachine, "unknown appointment status")
	ErrReasonCodeRequired      = newError("REASON_CODE_REQUIRED", KindStateMachine, "reason code is required to cancel an appointment")
	ErrInvalidReasonCode       = newError("INVALID_REASON_CODE", KindStateMachine, "unknown reason code")
)

var ErrNotAuthenticated = newError("NOT_AUTHENTICATED", KindAuth, "missing or invalid actor identity")
