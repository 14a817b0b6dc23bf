package api

import (
	"time"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientCode      string   `json:"patient_code"`
	DoctorCode       string   `json:"doctor_code"`
	RoomCode         string   `json:"room_code"`
	ServiceCodes     []string `json:"service_codes"`
	ParticipantCodes []string `json:"participant_codes"`
	StartTime        string   `json:"start_time"`
	Notes            string   `json:"notes"`
}

func (r CreateAppointmentRequest) toDomain() appointment.CreateRequest {
	return appointment.CreateRequest{
		PatientCode:      r.PatientCode,
		DoctorCode:       r.DoctorCode,
		RoomCode:         r.RoomCode,
		ServiceCodes:     r.ServiceCodes,
		ParticipantCodes: r.ParticipantCodes,
		StartTime:        r.StartTime,
		Notes:            r.Notes,
	}
}

type UpdateStatusRequest struct {
	Status     string  `json:"status"`
	ReasonCode *string `json:"reason_code,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type RescheduleAppointmentRequest struct {
	NewStartTime        string   `json:"new_start_time"`
	NewDoctorCode       string   `json:"new_doctor_code"`
	NewRoomCode         string   `json:"new_room_code"`
	NewParticipantCodes []string `json:"new_participant_codes"`
	ReasonCode          string   `json:"reason_code"`
	CancelNotes         *string  `json:"cancel_notes,omitempty"`
}

func (r RescheduleAppointmentRequest) toDomain() appointment.RescheduleRequest {
	return appointment.RescheduleRequest{
		NewStartTime:        r.NewStartTime,
		NewDoctorCode:       r.NewDoctorCode,
		NewRoomCode:         r.NewRoomCode,
		NewParticipantCodes: r.NewParticipantCodes,
		ReasonCode:          r.ReasonCode,
		CancelNotes:         r.CancelNotes,
	}
}

type AuditLogResponse struct {
	ActionType  string    `json:"action_type"`
	OldStatus   *string   `json:"old_status,omitempty"`
	NewStatus   *string   `json:"new_status,omitempty"`
	ReasonCode  *string   `json:"reason_code,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	PerformedBy int64     `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func newAuditLogResponse(l appointment.AuditLog) AuditLogResponse {
	resp := AuditLogResponse{
		ActionType:  string(l.ActionType),
		ReasonCode:  l.ReasonCode,
		Notes:       l.Notes,
		PerformedBy: l.PerformedBy,
		CreatedAt:   l.CreatedAt,
	}
	if l.OldStatus != nil {
		s := string(*l.OldStatus)
		resp.OldStatus = &s
	}
	if l.NewStatus != nil {
		s := string(*l.NewStatus)
		resp.NewStatus = &s
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
