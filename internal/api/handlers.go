package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/appointment"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			writeAppError(w, appointment.ErrNotAuthenticated)
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "could not parse JSON")
			return
		}

		detail, err := svc.CreateAppointment(r.Context(), actor, req.toDomain())
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, detail)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.GetAppointment(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func updateStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			writeAppError(w, appointment.ErrNotAuthenticated)
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "could not parse JSON")
			return
		}

		detail, err := svc.UpdateStatus(r.Context(), actor, chi.URLParam(r, "code"), appointment.UpdateStatusRequest{
			Status:     appointment.AppointmentStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
			ReasonCode: req.ReasonCode,
			Notes:      req.Notes,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, detail)
	}
}

func rescheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			writeAppError(w, appointment.ErrNotAuthenticated)
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "could not parse JSON")
			return
		}

		result, err := svc.RescheduleAppointment(r.Context(), actor, chi.URLParam(r, "code"), req.toDomain())
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

func auditLogsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := svc.ListAuditLogs(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeAppError(w, err)
			return
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, newAuditLogResponse(l))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// statusForKind maps an engine error kind to the HTTP status it is reported with.
func statusForKind(k appointment.Kind) int {
	switch k {
	case appointment.KindNotFound:
		return http.StatusNotFound
	case appointment.KindIneligible:
		return http.StatusUnprocessableEntity
	case appointment.KindPrecondition:
		return http.StatusBadRequest
	case appointment.KindConflict, appointment.KindStateMachine:
		return http.StatusConflict
	case appointment.KindAuth:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeAppError(w http.ResponseWriter, err error) {
	var appErr *appointment.Error
	if errors.As(err, &appErr) {
		writeError(w, statusForKind(appErr.Kind), appErr.Code, appErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
