package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/appointment"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/metrics"
)

var testSecret = []byte("test-secret")

type fakeService struct {
	actor      appointment.ActorIdentity
	code       string
	createReq  appointment.CreateRequest
	statusReq  appointment.UpdateStatusRequest
	reschedReq appointment.RescheduleRequest
	err        error
}

func (f *fakeService) CreateAppointment(ctx context.Context, actor appointment.ActorIdentity, req appointment.CreateRequest) (*appointment.AppointmentDetail, error) {
	f.actor, f.createReq = actor, req
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.AppointmentDetail{Code: "APT-20300102-001", Status: appointment.StatusScheduled}, nil
}

func (f *fakeService) GetAppointment(ctx context.Context, code string) (*appointment.AppointmentDetail, error) {
	f.code = code
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.AppointmentDetail{Code: code, Status: appointment.StatusScheduled}, nil
}

func (f *fakeService) UpdateStatus(ctx context.Context, actor appointment.ActorIdentity, code string, req appointment.UpdateStatusRequest) (*appointment.AppointmentDetail, error) {
	f.actor, f.code, f.statusReq = actor, code, req
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.AppointmentDetail{Code: code, Status: req.Status}, nil
}

func (f *fakeService) RescheduleAppointment(ctx context.Context, actor appointment.ActorIdentity, code string, req appointment.RescheduleRequest) (*appointment.RescheduleResult, error) {
	f.actor, f.code, f.reschedReq = actor, code, req
	if f.err != nil {
		return nil, f.err
	}
	return &appointment.RescheduleResult{
		Cancelled: &appointment.AppointmentDetail{Code: code, Status: appointment.StatusCancelled},
		Created:   &appointment.AppointmentDetail{Code: "APT-20300102-002", Status: appointment.StatusScheduled},
	}, nil
}

func (f *fakeService) ListAuditLogs(ctx context.Context, code string) ([]appointment.AuditLog, error) {
	f.code = code
	if f.err != nil {
		return nil, f.err
	}
	created := appointment.StatusScheduled
	return []appointment.AuditLog{{ActionType: appointment.ActionCreate, NewStatus: &created, PerformedBy: 5}}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestRouter(svc AppointmentService) http.Handler {
	return NewRouter(RouterConfig{
		Service:   svc,
		Postgres:  stubPinger{},
		Redis:     stubPinger{},
		Logger:    zerolog.Nop(),
		JWTSecret: testSecret,
		Env:       "test",
	})
}

func token(t *testing.T, claims ActorClaims, secret []byte) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestCreateAppointmentRoute(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodPost, "/api/v1/appointments", token(t, ActorClaims{EmployeeID: 12}, testSecret), CreateAppointmentRequest{
		PatientCode:  "P001",
		DoctorCode:   "D001",
		RoomCode:     "R01",
		ServiceCodes: []string{"SV-CLEAN"},
		StartTime:    "2030-01-02T09:00:00",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.actor.ID != 12 {
		t.Errorf("actor = %d, want 12", svc.actor.ID)
	}
	if svc.createReq.DoctorCode != "D001" || len(svc.createReq.ServiceCodes) != 1 {
		t.Errorf("request = %+v", svc.createReq)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	var detail appointment.AppointmentDetail
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Code != "APT-20300102-001" {
		t.Errorf("code = %s", detail.Code)
	}
}

func TestAuthentication(t *testing.T) {
	h := newTestRouter(&fakeService{})

	tests := []struct {
		name   string
		bearer string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
		{"wrong secret", token(t, ActorClaims{EmployeeID: 3}, []byte("other"))},
		{"no employee id", token(t, ActorClaims{Roles: []string{"DOCTOR"}}, testSecret)},
		{"expired", token(t, ActorClaims{
			EmployeeID:       3,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		}, testSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/v1/appointments/APT-20300102-001", tt.bearer, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Error != "NOT_AUTHENTICATED" {
				t.Fatalf("error = %s", resp.Error)
			}
		})
	}
}

func TestAdminActsAsSystem(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(svc)

	bearer := token(t, ActorClaims{EmployeeID: 99, Roles: []string{"RECEPTION", RoleAdmin}}, testSecret)
	rec := do(t, h, http.MethodPatch, "/api/v1/appointments/APT-20300102-001/status", bearer, UpdateStatusRequest{Status: "checked_in"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.actor.ID != appointment.SystemActorID {
		t.Errorf("actor = %d, want system", svc.actor.ID)
	}
	if svc.statusReq.Status != appointment.StatusCheckedIn || svc.code != "APT-20300102-001" {
		t.Errorf("status request = %+v code %s", svc.statusReq, svc.code)
	}
}

func TestRescheduleRoute(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(svc)

	notes := "patient asked"
	rec := do(t, h, http.MethodPost, "/api/v1/appointments/APT-20300102-001/reschedule", token(t, ActorClaims{EmployeeID: 4}, testSecret), RescheduleAppointmentRequest{
		NewStartTime:  "2030-01-02T15:00:00",
		NewDoctorCode: "D002",
		NewRoomCode:   "R02",
		ReasonCode:    appointment.ReasonPatientRequest,
		CancelNotes:   &notes,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.reschedReq.NewDoctorCode != "D002" || svc.reschedReq.CancelNotes == nil || *svc.reschedReq.CancelNotes != notes {
		t.Errorf("request = %+v", svc.reschedReq)
	}

	var res map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := res["cancelled_appointment"]; !ok {
		t.Error("missing cancelled_appointment")
	}
	if _, ok := res["new_appointment"]; !ok {
		t.Error("missing new_appointment")
	}
}

func TestAuditLogsRoute(t *testing.T) {
	h := newTestRouter(&fakeService{})

	rec := do(t, h, http.MethodGet, "/api/v1/appointments/APT-20300102-001/audit-logs", token(t, ActorClaims{EmployeeID: 4}, testSecret), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var logs []AuditLogResponse
	if err := json.NewDecoder(rec.Body).Decode(&logs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(logs) != 1 || logs[0].ActionType != "CREATE" || logs[0].OldStatus != nil || *logs[0].NewStatus != "SCHEDULED" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "APPOINTMENT_NOT_FOUND"},
		{appointment.ErrNotQualified, http.StatusUnprocessableEntity, "NOT_QUALIFIED"},
		{appointment.ErrShiftNotCovering, http.StatusBadRequest, "SHIFT_NOT_COVERING"},
		{appointment.ErrRoomSlotTaken, http.StatusConflict, "ROOM_SLOT_TAKEN"},
		{appointment.ErrInvalidStatusTransition, http.StatusConflict, "INVALID_STATUS_TRANSITION"},
		{errors.New("pool closed"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newTestRouter(&fakeService{err: tt.err})
			rec := do(t, h, http.MethodGet, "/api/v1/appointments/APT-20300102-001", token(t, ActorClaims{EmployeeID: 1}, testSecret), nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if resp := decodeError(t, rec); resp.Error != tt.code {
				t.Fatalf("error = %s, want %s", resp.Error, tt.code)
			}
		})
	}
}

func TestInvalidBody(t *testing.T) {
	h := newTestRouter(&fakeService{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token(t, ActorClaims{EmployeeID: 1}, testSecret))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDevModeWithoutSecret(t *testing.T) {
	svc := &fakeService{}
	h := NewRouter(RouterConfig{Service: svc, Postgres: stubPinger{}, Logger: zerolog.Nop()})

	rec := do(t, h, http.MethodPost, "/api/v1/appointments", "", CreateAppointmentRequest{PatientCode: "P001"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.actor.ID != appointment.SystemActorID {
		t.Fatalf("actor = %d", svc.actor.ID)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		postgres error
		redis    error
		status   int
		want     string
	}{
		{"all up", nil, nil, http.StatusOK, "ok"},
		{"redis down", nil, errors.New("down"), http.StatusOK, "degraded"},
		{"postgres down", errors.New("down"), nil, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{
				Service:  &fakeService{},
				Postgres: stubPinger{err: tt.postgres},
				Redis:    stubPinger{err: tt.redis},
				Logger:   zerolog.Nop(),
			})
			rec := do(t, h, http.MethodGet, "/health/ready", "", nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.want {
				t.Fatalf("readiness = %s, want %s", resp.Status, tt.want)
			}
		})
	}

	h := newTestRouter(&fakeService{})
	if rec := do(t, h, http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("liveness status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Created()

	h := NewRouter(RouterConfig{Service: &fakeService{}, Postgres: stubPinger{}, Gatherer: reg, Logger: zerolog.Nop()})
	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("clinic_appointments_created_total 1")) {
		t.Fatalf("metrics body lacks created counter:\n%s", rec.Body)
	}
}
