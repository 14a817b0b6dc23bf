package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/config"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/metrics"
	redisclient "github.com/DenTeeth/PDCMS-BE-sub001/internal/redis"
)

type Service struct {
	store   Store
	locker  redisclient.Locker
	log     zerolog.Logger
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time

	resources      *ResourceValidator
	qualifications QualificationChecker
	shifts         *ShiftCoverageValidator
	conflicts      *ConflictDetector
	codes          *CodeGenerator
	writer         AppointmentWriter
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	loc := cfg.ClinicLocation
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		store:     store,
		locker:    locker,
		log:       zerolog.Nop(),
		loc:       loc,
		now:       time.Now,
		resources: NewResourceValidator(cfg.ClinicalSpecializationID),
		shifts:    NewShiftCoverageValidator(loc),
		conflicts: NewConflictDetector(loc),
		codes:     NewCodeGenerator(loc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAppointment books a new appointment. Validation, conflict checks and
// all writes share one transaction; any failure leaves nothing behind.
func (s *Service) CreateAppointment(ctx context.Context, actor ActorIdentity, req CreateRequest) (*AppointmentDetail, error) {
	defer s.metrics.Observe("create", time.Now())

	start, err := s.parseFutureStart(req.StartTime)
	if err != nil {
		return nil, s.reject("create", err)
	}

	in := ResourceInput{
		PatientCode:      req.PatientCode,
		DoctorCode:       req.DoctorCode,
		RoomCode:         req.RoomCode,
		ServiceCodes:     req.ServiceCodes,
		ParticipantCodes: req.ParticipantCodes,
	}

	var detail *AppointmentDetail
	err = s.locker.WithLocks(ctx, s.bookingLockKeys(in, start), func(lockCtx context.Context) error {
		return s.store.WithTx(lockCtx, func(txCtx context.Context, repo Repository) error {
			appt, err := s.create(txCtx, repo, actor, in, start, req.Notes, 0)
			if err != nil {
				return err
			}
			detail, err = s.loadDetail(txCtx, repo, appt)
			return err
		})
	})
	if err != nil {
		return nil, s.reject("create", err)
	}

	s.metrics.Created()
	s.log.Info().
		Str("code", detail.Code).
		Str("doctor", detail.Doctor.Code).
		Str("room", detail.Room.Code).
		Time("start", detail.StartTime).
		Int64("actor", actor.ID).
		Msg("appointment created")

	return detail, nil
}

// create runs the booking pipeline inside an open transaction. excludeID
// leaves one appointment out of the conflict scans.
func (s *Service) create(ctx context.Context, repo Repository, actor ActorIdentity, in ResourceInput, start time.Time, notes string, excludeID int64) (*Appointment, error) {
	res, err := s.resources.Resolve(ctx, repo, in)
	if err != nil {
		return nil, err
	}
	if err := s.qualifications.Check(ctx, repo, res); err != nil {
		return nil, err
	}

	end := EndTime(start, res.Services)

	if err := s.shifts.Check(ctx, repo, res, start, end); err != nil {
		return nil, err
	}

	if err := repo.LockResources(ctx, ResourceLockKeys(res)); err != nil {
		return nil, fmt.Errorf("lock booking resources: %w", err)
	}
	if err := s.conflicts.Check(ctx, repo, res, start, end, excludeID); err != nil {
		return nil, err
	}

	code, err := s.codes.Next(ctx, repo, start)
	if err != nil {
		return nil, err
	}

	now := s.now()
	appt := &Appointment{
		Code:                    code,
		PatientID:               res.Patient.ID,
		DoctorID:                res.Doctor.ID,
		RoomID:                  res.Room.ID,
		StartTime:               start,
		EndTime:                 end,
		ExpectedDurationMinutes: int(end.Sub(start) / time.Minute),
		Status:                  StatusScheduled,
		Notes:                   notes,
		CreatedBy:               actor.ID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.writer.Write(ctx, repo, appt, res); err != nil {
		return nil, err
	}
	return appt, nil
}

// UpdateStatus moves an appointment along the status graph while holding a
// row lock on it.
func (s *Service) UpdateStatus(ctx context.Context, actor ActorIdentity, code string, req UpdateStatusRequest) (*AppointmentDetail, error) {
	defer s.metrics.Observe("update_status", time.Now())

	var (
		detail *AppointmentDetail
		from   AppointmentStatus
	)
	err := s.store.WithTx(ctx, func(txCtx context.Context, repo Repository) error {
		appt, prev, err := s.transition(txCtx, repo, actor, code, transitionInput{
			to:         req.Status,
			reasonCode: req.ReasonCode,
			notes:      req.Notes,
			auditNotes: deref(req.Notes),
			action:     ActionStatusChange,
		})
		if err != nil {
			return err
		}
		from = prev
		detail, err = s.loadDetail(txCtx, repo, appt)
		return err
	})
	if err != nil {
		return nil, s.reject("update_status", err)
	}

	s.metrics.Transition(string(from), string(req.Status))
	s.log.Info().
		Str("code", detail.Code).
		Str("from", string(from)).
		Str("to", string(detail.Status)).
		Int64("actor", actor.ID).
		Msg("appointment status changed")

	return detail, nil
}

type transitionInput struct {
	to         AppointmentStatus
	reasonCode *string
	// notes overwrites the appointment notes when set
	notes      *string
	auditNotes string
	action     AuditAction
}

func (s *Service) transition(ctx context.Context, repo Repository, actor ActorIdentity, code string, in transitionInput) (*Appointment, AppointmentStatus, error) {
	appt, err := repo.GetAppointmentByCodeForUpdate(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, "", withf(ErrAppointmentNotFound, "appointment %q not found", code)
		}
		return nil, "", fmt.Errorf("lock appointment: %w", err)
	}

	from := appt.Status
	if err := ValidateTransition(from, in.to); err != nil {
		return nil, "", err
	}
	if err := validateReason(in.to, in.reasonCode); err != nil {
		return nil, "", err
	}

	now := s.now()
	applyTransition(appt, in.to, now)
	if in.notes != nil {
		appt.Notes = *in.notes
	}

	if err := repo.UpdateAppointmentStatus(ctx, appt); err != nil {
		return nil, "", fmt.Errorf("update appointment status: %w", err)
	}

	var reason *string
	if in.reasonCode != nil && *in.reasonCode != "" {
		reason = in.reasonCode
	}
	err = repo.InsertAuditLog(ctx, &AuditLog{
		AppointmentID: appt.ID,
		ActionType:    in.action,
		OldStatus:     statusPtr(from),
		NewStatus:     statusPtr(in.to),
		ReasonCode:    reason,
		Notes:         in.auditNotes,
		PerformedBy:   actor.ID,
		CreatedAt:     now,
	})
	if err != nil {
		return nil, "", fmt.Errorf("insert status audit log: %w", err)
	}

	return appt, from, nil
}

// RescheduleAppointment cancels a SCHEDULED or CHECKED_IN appointment and
// books its replacement in the same transaction. The new appointment keeps
// the patient and services of the old one.
func (s *Service) RescheduleAppointment(ctx context.Context, actor ActorIdentity, oldCode string, req RescheduleRequest) (*RescheduleResult, error) {
	defer s.metrics.Observe("reschedule", time.Now())

	start, err := s.parseFutureStart(req.NewStartTime)
	if err != nil {
		return nil, s.reject("reschedule", err)
	}
	if err := validateReason(StatusCancelled, &req.ReasonCode); err != nil {
		return nil, s.reject("reschedule", err)
	}

	patientCode, err := s.patientCodeOf(ctx, oldCode)
	if err != nil {
		return nil, s.reject("reschedule", err)
	}

	lockInput := ResourceInput{
		PatientCode:      patientCode,
		DoctorCode:       req.NewDoctorCode,
		RoomCode:         req.NewRoomCode,
		ParticipantCodes: req.NewParticipantCodes,
	}

	var result RescheduleResult
	err = s.locker.WithLocks(ctx, s.bookingLockKeys(lockInput, start), func(lockCtx context.Context) error {
		return s.store.WithTx(lockCtx, func(txCtx context.Context, repo Repository) error {
			old, err := repo.GetAppointmentByCodeForUpdate(txCtx, strings.TrimSpace(oldCode))
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return withf(ErrAppointmentNotFound, "appointment %q not found", oldCode)
				}
				return fmt.Errorf("lock appointment: %w", err)
			}
			if old.Status != StatusScheduled && old.Status != StatusCheckedIn {
				return withf(ErrInvalidStatusForReschedule, "appointment %s is %s, only %s or %s can be rescheduled",
					old.Code, old.Status, StatusScheduled, StatusCheckedIn)
			}

			services, err := repo.ListAppointmentServices(txCtx, old.ID)
			if err != nil {
				return fmt.Errorf("load appointment services: %w", err)
			}
			patient, err := repo.GetPatientByID(txCtx, old.PatientID)
			if err != nil {
				return fmt.Errorf("load patient: %w", err)
			}

			in := lockInput
			in.PatientCode = patient.Code
			for _, svc := range services {
				in.ServiceCodes = append(in.ServiceCodes, svc.Code)
			}

			created, err := s.create(txCtx, repo, actor, in, start, old.Notes, old.ID)
			if err != nil {
				return err
			}

			auditNotes := "Rescheduled to " + created.Code
			if n := strings.TrimSpace(deref(req.CancelNotes)); n != "" {
				auditNotes += ": " + n
			}
			reason := req.ReasonCode
			cancelled, _, err := s.transition(txCtx, repo, actor, old.Code, transitionInput{
				to:         StatusCancelled,
				reasonCode: &reason,
				auditNotes: auditNotes,
				action:     ActionCancel,
			})
			if err != nil {
				return err
			}

			if err := repo.SetRescheduledTo(txCtx, cancelled.ID, created.ID); err != nil {
				return fmt.Errorf("link rescheduled appointment: %w", err)
			}
			cancelled.RescheduledToAppointmentID = &created.ID

			if result.Cancelled, err = s.loadDetail(txCtx, repo, cancelled); err != nil {
				return err
			}
			result.Created, err = s.loadDetail(txCtx, repo, created)
			return err
		})
	})
	if err != nil {
		return nil, s.reject("reschedule", err)
	}

	s.metrics.Rescheduled()
	s.metrics.Created()
	s.log.Info().
		Str("old_code", result.Cancelled.Code).
		Str("new_code", result.Created.Code).
		Str("reason", req.ReasonCode).
		Int64("actor", actor.ID).
		Msg("appointment rescheduled")

	return &result, nil
}

// GetAppointment retrieves a fully hydrated appointment by code
func (s *Service) GetAppointment(ctx context.Context, code string) (*AppointmentDetail, error) {
	var detail *AppointmentDetail
	err := s.store.WithTx(ctx, func(txCtx context.Context, repo Repository) error {
		appt, err := s.lookup(txCtx, repo, code)
		if err != nil {
			return err
		}
		detail, err = s.loadDetail(txCtx, repo, appt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListAuditLogs returns the audit trail of an appointment, oldest first.
func (s *Service) ListAuditLogs(ctx context.Context, code string) ([]AuditLog, error) {
	var logs []AuditLog
	err := s.store.WithTx(ctx, func(txCtx context.Context, repo Repository) error {
		appt, err := s.lookup(txCtx, repo, code)
		if err != nil {
			return err
		}
		logs, err = repo.ListAuditLogs(txCtx, appt.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// MarkNoShows is intended to be called by the worker periodically. Each
// appointment is moved in its own transaction so one failure does not hold
// back the rest.
func (s *Service) MarkNoShows(ctx context.Context, grace time.Duration, batch int) (int, error) {
	cutoff := s.now().Add(-grace)

	var overdue []Appointment
	err := s.store.WithTx(ctx, func(txCtx context.Context, repo Repository) error {
		var err error
		overdue, err = repo.FindOverdueScheduled(txCtx, cutoff, batch)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	notes := "Marked as no-show automatically"
	marked := 0
	for _, appt := range overdue {
		_, err := s.UpdateStatus(ctx, SystemActor(), appt.Code, UpdateStatusRequest{
			Status: StatusNoShow,
			Notes:  &notes,
		})
		if err != nil {
			// Someone checked the patient in meanwhile.
			if errors.Is(err, ErrInvalidStatusTransition) {
				continue
			}
			s.log.Error().Err(err).Str("code", appt.Code).Msg("failed to mark appointment as no-show")
			continue
		}
		marked++
	}
	return marked, nil
}

func (s *Service) lookup(ctx context.Context, repo Repository, code string) (*Appointment, error) {
	appt, err := repo.GetAppointmentByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, withf(ErrAppointmentNotFound, "appointment %q not found", code)
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) patientCodeOf(ctx context.Context, appointmentCode string) (string, error) {
	var code string
	err := s.store.WithTx(ctx, func(txCtx context.Context, repo Repository) error {
		appt, err := s.lookup(txCtx, repo, appointmentCode)
		if err != nil {
			return err
		}
		p, err := repo.GetPatientByID(txCtx, appt.PatientID)
		if err != nil {
			return fmt.Errorf("load patient: %w", err)
		}
		code = p.Code
		return nil
	})
	return code, err
}

func (s *Service) loadDetail(ctx context.Context, repo Repository, a *Appointment) (*AppointmentDetail, error) {
	patient, err := repo.GetPatientByID(ctx, a.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	doctor, err := repo.GetEmployeeByID(ctx, a.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	room, err := repo.GetRoomByID(ctx, a.RoomID)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	services, err := repo.ListAppointmentServices(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load appointment services: %w", err)
	}
	participants, err := repo.ListParticipants(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	d := &AppointmentDetail{
		Code:            a.Code,
		Status:          a.Status,
		StartTime:       a.StartTime.In(s.loc),
		EndTime:         a.EndTime.In(s.loc),
		DurationMinutes: a.ExpectedDurationMinutes,
		ActualStartTime: a.ActualStartTime,
		ActualEndTime:   a.ActualEndTime,
		Notes:           a.Notes,
		CreatedBy:       a.CreatedBy,
		Patient: PatientSummary{
			Code:     patient.Code,
			FullName: patient.FullName,
			Phone:    patient.Phone,
		},
		Doctor:       EmployeeSummary{Code: doctor.Code, FullName: doctor.FullName},
		Room:         RoomSummary{Code: room.Code, Name: room.Name},
		Services:     make([]ServiceSummary, 0, len(services)),
		Participants: make([]ParticipantSummary, 0, len(participants)),
	}
	for _, svc := range services {
		d.Services = append(d.Services, ServiceSummary{
			Code:            svc.Code,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
			BufferMinutes:   svc.BufferMinutes,
		})
	}
	for _, p := range participants {
		emp, err := repo.GetEmployeeByID(ctx, p.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("load participant: %w", err)
		}
		d.Participants = append(d.Participants, ParticipantSummary{Code: emp.Code, FullName: emp.FullName, Role: p.Role})
	}

	if a.RescheduledToAppointmentID != nil {
		next, err := repo.GetAppointmentByID(ctx, *a.RescheduledToAppointmentID)
		if err != nil {
			return nil, fmt.Errorf("load rescheduled appointment: %w", err)
		}
		d.RescheduledToCode = &next.Code
	}

	if a.Status == StatusCancelled {
		logs, err := repo.ListAuditLogs(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("load audit logs: %w", err)
		}
		for i := len(logs) - 1; i >= 0; i-- {
			if logs[i].NewStatus != nil && *logs[i].NewStatus == StatusCancelled {
				d.CancellationReason = logs[i].ReasonCode
				break
			}
		}
	}

	return d, nil
}

func (s *Service) parseFutureStart(raw string) (time.Time, error) {
	start, err := ParseStartTime(raw, s.loc)
	if err != nil {
		return time.Time{}, err
	}
	if !start.After(s.now()) {
		return time.Time{}, withf(ErrStartTimeInPast, "start time %s is not in the future", start.Format(time.RFC3339))
	}
	return start, nil
}

// bookingLockKeys names the Redis keys of a booking by the codes in the
// request. They are coarse, one per resource per clinic day.
func (s *Service) bookingLockKeys(in ResourceInput, start time.Time) []string {
	day := start.In(s.loc).Format("20060102")
	keys := []string{
		"employee:" + strings.TrimSpace(in.DoctorCode) + ":" + day,
		"room:" + strings.TrimSpace(in.RoomCode) + ":" + day,
	}
	if in.PatientCode != "" {
		keys = append(keys, "patient:"+strings.TrimSpace(in.PatientCode)+":"+day)
	}
	for _, p := range uniqueCodes(in.ParticipantCodes) {
		keys = append(keys, "employee:"+p+":"+day)
	}
	return uniqueCodes(keys)
}

// reject normalizes an operation failure and counts business rejections.
func (s *Service) reject(operation string, err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		err = ErrBookingInProgress
	}

	var apptErr *Error
	if errors.As(err, &apptErr) {
		s.metrics.Rejected(operation, apptErr.Code)
		s.log.Debug().Str("operation", operation).Str("code", apptErr.Code).Msg(apptErr.Message)
		return err
	}

	s.log.Error().Err(err).Str("operation", operation).Msg("appointment operation failed")
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
