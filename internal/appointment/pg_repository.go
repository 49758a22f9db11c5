package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/outpatient-scheduling/internal/apperr"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/db"
)

// PgRepository resolves its connection through db.Conn so every call joins
// the transaction opened by the engine, if any.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, doctor_id, patient_id, appointment_date, slot_start_min, slot_end_min,
	token, status, consultation_type, cancellation_reason, cancelled_by, outcome,
	checked_in_at, completed_at, leave_notice_sent, rescheduled_from, rescheduled_to,
	created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotStart, slotEnd int
	var cancelledBy *string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&slotStart,
		&slotEnd,
		&a.Token,
		&a.Status,
		&a.ConsultationType,
		&a.CancellationReason,
		&cancelledBy,
		&a.Outcome,
		&a.CheckedInAt,
		&a.CompletedAt,
		&a.LeaveNoticeSent,
		&a.RescheduledFrom,
		&a.RescheduledTo,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.SlotStart = calendar.TimeOfDay(slotStart)
	a.SlotEnd = calendar.TimeOfDay(slotEnd)
	if cancelledBy != nil {
		actor := Actor(*cancelledBy)
		a.CancelledBy = &actor
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
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

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, appointment_date, slot_start_min, slot_end_min,
			token, status, consultation_type, rescheduled_from, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, calendar.DateOf(a.Date), int(a.SlotStart), int(a.SlotEnd),
		a.Token, a.Status, a.ConsultationType, a.RescheduledFrom, a.CreatedAt,
	)

	created, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.ErrConcurrencyConflict, err, "token %d already issued", a.Token)
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) CountActiveInSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, slotStart calendar.TimeOfDay) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND slot_start_min = $3
		  AND status IN ('booked', 'in_queue')
	`, doctorID, calendar.DateOf(date), int(slotStart)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count slot occupancy: %w", err)
	}
	return n, nil
}

func (r *PgRepository) ListForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
		ORDER BY token
	`, doctorID, calendar.DateOf(date))
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListActiveInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status IN ('booked', 'in_queue')
		ORDER BY appointment_date, token
	`, doctorID, calendar.DateOf(from), calendar.DateOf(to))
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, slot_start_min DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListActiveUpTo(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date <= $1
		  AND status IN ('booked', 'in_queue')
		ORDER BY appointment_date, slot_end_min
	`, calendar.DateOf(date))
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, ch Change) (*Appointment, error) {
	var cancelledBy *string
	if ch.Actor != nil {
		s := string(*ch.Actor)
		cancelledBy = &s
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = $4,
		    cancellation_reason = COALESCE($5, cancellation_reason),
		    cancelled_by = COALESCE($6, cancelled_by),
		    outcome = COALESCE($7, outcome),
		    rescheduled_to = COALESCE($8, rescheduled_to),
		    checked_in_at = CASE WHEN $3 = 'in_queue' THEN $4 ELSE checked_in_at END,
		    completed_at = CASE WHEN $3 = 'consulted' THEN $4 ELSE completed_at END
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		id, from, ch.To, ch.At, ch.Reason, cancelledBy, ch.Outcome, ch.RescheduledTo,
	)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

func (r *PgRepository) MoveSlot(ctx context.Context, id uuid.UUID, from Status, start, end calendar.TimeOfDay, at time.Time) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET slot_start_min = $3, slot_end_min = $4, updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		id, from, int(start), int(end), at,
	)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("move appointment: %w", err)
	}
	return a, nil
}

func (r *PgRepository) ListPendingLeaveNotices(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status = 'cancelled'
		  AND cancellation_reason = $4
		  AND leave_notice_sent = false
		ORDER BY appointment_date, token
	`, doctorID, calendar.DateOf(from), calendar.DateOf(to), ReasonDoctorLeave)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) MarkLeaveNoticeSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointments
		SET leave_notice_sent = true, updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("mark leave notices sent: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// PgTokenRepository keeps one counter row per doctor and date.
type PgTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgTokenRepository(pool *pgxpool.Pool) *PgTokenRepository {
	return &PgTokenRepository{pool: pool}
}

func (r *PgTokenRepository) NextToken(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var token int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO token_counters (doctor_id, token_date, last_token)
		VALUES ($1, $2, 1)
		ON CONFLICT (doctor_id, token_date)
		DO UPDATE SET last_token = token_counters.last_token + 1
		RETURNING last_token
	`, doctorID, date).Scan(&token)
	if err != nil {
		return 0, err
	}
	return token, nil
}

func (r *PgTokenRepository) PeekToken(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var last int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT last_token FROM token_counters
		WHERE doctor_id = $1 AND token_date = $2
	`, doctorID, date).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}
