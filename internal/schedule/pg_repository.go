package schedule

import (
	"context"
	"encoding/json"
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

type PgRepository struct {
	pool *pgxpool.Pool
	tx   *db.TxManager
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, tx: db.NewTxManager(pool)}
}

const recordColumns = `
	id, doctor_id, schedule_date, is_available, work_start_min, work_end_min,
	break_start_min, break_end_min, slot_duration_min, max_patients_per_slot,
	leave_reason, notes, blocked, created_at, superseded_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var workStart, workEnd int
	var breakStart, breakEnd *int
	var blocked []byte

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.Date,
		&r.IsAvailable,
		&workStart,
		&workEnd,
		&breakStart,
		&breakEnd,
		&r.SlotDurationMins,
		&r.MaxPatientsPerSlot,
		&r.LeaveReason,
		&r.Notes,
		&blocked,
		&r.CreatedAt,
		&r.SupersededAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	r.WorkStart = calendar.TimeOfDay(workStart)
	r.WorkEnd = calendar.TimeOfDay(workEnd)
	if breakStart != nil && breakEnd != nil {
		r.Break = &calendar.Window{Start: calendar.TimeOfDay(*breakStart), End: calendar.TimeOfDay(*breakEnd)}
	}
	if len(blocked) > 0 {
		if err := json.Unmarshal(blocked, &r.Blocked); err != nil {
			return nil, fmt.Errorf("decode blocked windows: %w", err)
		}
	}

	return &r, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var result []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetActive(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Record, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM schedule_records
		WHERE doctor_id = $1 AND schedule_date = $2 AND superseded_at IS NULL
	`, doctorID, calendar.DateOf(date))
	return scanRecord(row)
}

func (r *PgRepository) Replace(ctx context.Context, rec *Record) (*Record, error) {
	blocked, err := json.Marshal(rec.Blocked)
	if err != nil {
		return nil, fmt.Errorf("encode blocked windows: %w", err)
	}
	if rec.Blocked == nil {
		blocked = []byte("[]")
	}

	var breakStart, breakEnd *int
	if rec.Break != nil {
		bs, be := int(rec.Break.Start), int(rec.Break.End)
		breakStart, breakEnd = &bs, &be
	}

	var stored *Record
	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx, r.pool)

		if _, err := q.Exec(ctx, `
			UPDATE schedule_records
			SET superseded_at = $3
			WHERE doctor_id = $1 AND schedule_date = $2 AND superseded_at IS NULL
		`, rec.DoctorID, calendar.DateOf(rec.Date), rec.CreatedAt); err != nil {
			return fmt.Errorf("supersede schedule record: %w", err)
		}

		row := q.QueryRow(ctx, `
			INSERT INTO schedule_records (
				id, doctor_id, schedule_date, is_available, work_start_min, work_end_min,
				break_start_min, break_end_min, slot_duration_min, max_patients_per_slot,
				leave_reason, notes, blocked, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING `+recordColumns,
			rec.ID, rec.DoctorID, calendar.DateOf(rec.Date), rec.IsAvailable,
			int(rec.WorkStart), int(rec.WorkEnd), breakStart, breakEnd,
			rec.SlotDurationMins, rec.MaxPatientsPerSlot, rec.LeaveReason, rec.Notes,
			blocked, rec.CreatedAt,
		)

		s, err := scanRecord(row)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Wrap(apperr.ErrConcurrencyConflict, err, "schedule for %s changed concurrently", calendar.FormatDate(rec.Date))
			}
			return fmt.Errorf("insert schedule record: %w", err)
		}
		stored = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

func (r *PgRepository) ListActive(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Record, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+recordColumns+`
		FROM schedule_records
		WHERE doctor_id = $1
		  AND schedule_date BETWEEN $2 AND $3
		  AND superseded_at IS NULL
		ORDER BY schedule_date
	`, doctorID, calendar.DateOf(from), calendar.DateOf(to))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *PgRepository) History(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Record, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+recordColumns+`
		FROM schedule_records
		WHERE doctor_id = $1 AND schedule_date = $2
		ORDER BY created_at DESC, superseded_at DESC NULLS FIRST
	`, doctorID, calendar.DateOf(date))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}
