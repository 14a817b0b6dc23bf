package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// PgStore runs every engine operation in a READ COMMITTED transaction.
// Double booking is prevented by advisory locks taken before the conflict
// scans and backed by deferred exclusion constraints on appointments.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &PgRepository{tx: tx}); err != nil {
		return translatePgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translatePgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// translatePgError turns constraint violations that guard booking invariants
// into the same business errors the engine raises itself.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "appointments_code_key":
		return withf(ErrDuplicateCode, "appointment code already taken, please retry")
	case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == "appointments_doctor_no_overlap":
		return withf(ErrEmployeeSlotTaken, "doctor was booked concurrently for this window")
	case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == "appointments_room_no_overlap":
		return withf(ErrRoomSlotTaken, "room was booked concurrently for this window")
	case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == "appointments_patient_no_overlap":
		return withf(ErrPatientHasConflict, "patient was booked concurrently for this window")
	}
	return err
}

type PgRepository struct {
	tx pgx.Tx
}

// Helpers

const appointmentCols = `a.id, a.appointment_code, a.patient_id, a.employee_id, a.room_id,
	a.appointment_start_time, a.appointment_end_time, a.expected_duration_minutes,
	a.actual_start_time, a.actual_end_time, a.status, a.notes, a.created_by,
	a.rescheduled_to_appointment_id, a.created_at, a.updated_at`

const employeeSelect = `
	SELECT e.id, e.employee_code, e.full_name, e.is_active,
	       COALESCE(array_agg(es.specialization_id) FILTER (WHERE es.specialization_id IS NOT NULL), '{}')
	FROM employees e
	LEFT JOIN employee_specializations es ON es.employee_id = e.id`

const serviceCols = `s.id, s.service_code, s.service_name, s.duration_minutes, s.buffer_minutes,
	s.specialization_id, s.is_active`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Code, &p.FullName, &p.Phone, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.Code, &e.FullName, &e.Active, &e.SpecializationIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	return &e, nil
}

func scanRoom(row pgx.Row) (*Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.Code, &r.Name, &r.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &r, nil
}

func scanService(row pgx.Row) (DentalService, error) {
	var s DentalService
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.DurationMinutes, &s.BufferMinutes, &s.SpecializationID, &s.Active)
	return s, err
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.Code,
		&a.PatientID,
		&a.DoctorID,
		&a.RoomID,
		&a.StartTime,
		&a.EndTime,
		&a.ExpectedDurationMinutes,
		&a.ActualStartTime,
		&a.ActualEndTime,
		&status,
		&a.Notes,
		&a.CreatedBy,
		&a.RescheduledToAppointmentID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	return &a, nil
}

func scanAuditLog(row pgx.Row) (AuditLog, error) {
	var l AuditLog
	var action string
	var oldStatus, newStatus *string

	err := row.Scan(&l.ID, &l.AppointmentID, &action, &oldStatus, &newStatus, &l.ReasonCode, &l.Notes, &l.PerformedBy, &l.CreatedAt)
	if err != nil {
		return l, err
	}

	l.ActionType = AuditAction(action)
	if oldStatus != nil {
		l.OldStatus = statusPtr(AppointmentStatus(*oldStatus))
	}
	if newStatus != nil {
		l.NewStatus = statusPtr(AppointmentStatus(*newStatus))
	}
	return l, nil
}

func activeStatusStrings() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

func nullableStatus(s *AppointmentStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// Interface methods

func (r *PgRepository) GetPatientByCode(ctx context.Context, code string) (*Patient, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT id, patient_code, full_name, phone, is_active
		FROM patients
		WHERE patient_code = $1
	`, code)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id int64) (*Patient, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT id, patient_code, full_name, phone, is_active
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetEmployeeByCode(ctx context.Context, code string) (*Employee, error) {
	return scanEmployee(r.tx.QueryRow(ctx, employeeSelect+` WHERE e.employee_code = $1 GROUP BY e.id`, code))
}

func (r *PgRepository) GetEmployeeByID(ctx context.Context, id int64) (*Employee, error) {
	return scanEmployee(r.tx.QueryRow(ctx, employeeSelect+` WHERE e.id = $1 GROUP BY e.id`, id))
}

func (r *PgRepository) GetRoomByCode(ctx context.Context, code string) (*Room, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT id, room_code, room_name, is_active
		FROM rooms
		WHERE room_code = $1
	`, code)
	return scanRoom(row)
}

func (r *PgRepository) GetRoomByID(ctx context.Context, id int64) (*Room, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT id, room_code, room_name, is_active
		FROM rooms
		WHERE id = $1
	`, id)
	return scanRoom(row)
}

func (r *PgRepository) GetServicesByCodes(ctx context.Context, codes []string) ([]DentalService, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+serviceCols+`
		FROM services s
		WHERE s.service_code = ANY($1)
	`, codes)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DentalService, error) {
		return scanService(row)
	})
}

func (r *PgRepository) GetRoomServiceIDs(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT service_id FROM room_services WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *PgRepository) ListShifts(ctx context.Context, employeeID int64, workDate time.Time) ([]Shift, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, employee_id, work_date, start_time, end_time
		FROM employee_shifts
		WHERE employee_id = $1
		  AND work_date = $2::date
		ORDER BY start_time
	`, employeeID, workDate.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Shift, error) {
		var sh Shift
		err := row.Scan(&sh.ID, &sh.EmployeeID, &sh.WorkDate, &sh.StartTime, &sh.EndTime)
		return sh, err
	})
}

// LockResources takes transaction scoped advisory locks in the given order.
func (r *PgRepository) LockResources(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}

func (r *PgRepository) GetAppointmentByCodeForUpdate(ctx context.Context, code string) (*Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments a
		WHERE a.appointment_code = $1
		FOR UPDATE
	`, code)
	return scanAppointment(row)
}

func (r *PgRepository) FindOverlapping(ctx context.Context, q OverlapQuery) (*Appointment, error) {
	var match string
	switch q.Scope {
	case ScopeRoom:
		match = `a.room_id = $1`
	case ScopePatient:
		match = `a.patient_id = $1`
	case ScopeEmployee:
		match = `(a.employee_id = $1 OR EXISTS (
			SELECT 1 FROM appointment_participants p
			WHERE p.appointment_id = a.id AND p.employee_id = $1))`
	default:
		return nil, fmt.Errorf("unknown conflict scope %d", q.Scope)
	}

	row := r.tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments a
		WHERE `+match+`
		  AND a.status = ANY($2)
		  AND a.appointment_start_time < $4
		  AND $3 < a.appointment_end_time
		  AND a.id <> $5
		ORDER BY a.appointment_start_time
		LIMIT 1
	`, q.ResourceID, activeStatusStrings(), q.Start, q.End, q.ExcludeID)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *PgRepository) MaxCodeWithPrefix(ctx context.Context, prefix string) (string, error) {
	var code string
	err := r.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(appointment_code), '')
		FROM appointments
		WHERE appointment_code LIKE $1 || '%'
	`, prefix).Scan(&code)
	return code, err
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	return r.tx.QueryRow(ctx, `
		INSERT INTO appointments (appointment_code, patient_id, employee_id, room_id,
			appointment_start_time, appointment_end_time, expected_duration_minutes,
			status, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id
	`, a.Code, a.PatientID, a.DoctorID, a.RoomID, a.StartTime, a.EndTime,
		a.ExpectedDurationMinutes, string(a.Status), a.Notes, a.CreatedBy, a.CreatedAt,
	).Scan(&a.ID)
}

func (r *PgRepository) InsertServiceLinks(ctx context.Context, appointmentID int64, serviceIDs []int64) error {
	_, err := r.tx.CopyFrom(ctx,
		pgx.Identifier{"appointment_services"},
		[]string{"appointment_id", "service_id"},
		pgx.CopyFromSlice(len(serviceIDs), func(i int) ([]any, error) {
			return []any{appointmentID, serviceIDs[i]}, nil
		}),
	)
	return err
}

func (r *PgRepository) InsertParticipants(ctx context.Context, participants []Participant) error {
	_, err := r.tx.CopyFrom(ctx,
		pgx.Identifier{"appointment_participants"},
		[]string{"appointment_id", "employee_id", "participant_role"},
		pgx.CopyFromSlice(len(participants), func(i int) ([]any, error) {
			p := participants[i]
			return []any{p.AppointmentID, p.EmployeeID, string(p.Role)}, nil
		}),
	)
	return err
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, a *Appointment) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    actual_start_time = $3,
		    actual_end_time = $4,
		    notes = $5,
		    updated_at = $6
		WHERE id = $1
	`, a.ID, string(a.Status), a.ActualStartTime, a.ActualEndTime, a.Notes, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SetRescheduledTo(ctx context.Context, id, newID int64) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE appointments
		SET rescheduled_to_appointment_id = $2
		WHERE id = $1
	`, id, newID)
	return err
}

func (r *PgRepository) InsertAuditLog(ctx context.Context, l *AuditLog) error {
	return r.tx.QueryRow(ctx, `
		INSERT INTO appointment_audit_logs (appointment_id, action_type, old_status, new_status,
			reason_code, notes, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, l.AppointmentID, string(l.ActionType), nullableStatus(l.OldStatus), nullableStatus(l.NewStatus),
		l.ReasonCode, l.Notes, l.PerformedBy, l.CreatedAt,
	).Scan(&l.ID)
}

func (r *PgRepository) GetAppointmentByCode(ctx context.Context, code string) (*Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments a
		WHERE a.appointment_code = $1
	`, code)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentServices(ctx context.Context, appointmentID int64) ([]DentalService, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+serviceCols+`
		FROM appointment_services aps
		JOIN services s ON s.id = aps.service_id
		WHERE aps.appointment_id = $1
		ORDER BY s.id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DentalService, error) {
		return scanService(row)
	})
}

func (r *PgRepository) ListParticipants(ctx context.Context, appointmentID int64) ([]Participant, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT appointment_id, employee_id, participant_role
		FROM appointment_participants
		WHERE appointment_id = $1
		ORDER BY employee_id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Participant, error) {
		var p Participant
		var role string
		err := row.Scan(&p.AppointmentID, &p.EmployeeID, &role)
		p.Role = ParticipantRole(role)
		return p, err
	})
}

func (r *PgRepository) ListAuditLogs(ctx context.Context, appointmentID int64) ([]AuditLog, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, appointment_id, action_type, old_status, new_status, reason_code, notes, performed_by, created_at
		FROM appointment_audit_logs
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditLog, error) {
		return scanAuditLog(row)
	})
}

func (r *PgRepository) FindOverdueScheduled(ctx context.Context, startedBefore time.Time, limit int) ([]Appointment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments a
		WHERE a.status = 'SCHEDULED'
		  AND a.appointment_start_time < $1
		ORDER BY a.appointment_start_time
		LIMIT $2
	`, startedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
