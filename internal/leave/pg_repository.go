package leave

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const requestColumns = `
	id, doctor_id, leave_type, start_date, end_date, session, reason, status,
	admin_comment, reconciliation, created_at, updated_at, decided_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.Type,
		&r.StartDate,
		&r.EndDate,
		&r.Session,
		&r.Reason,
		&r.Status,
		&r.AdminComment,
		&r.Reconciliation,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.DecidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &r, nil
}

func scanRequests(rows pgx.Rows) ([]Request, error) {
	defer rows.Close()

	var result []Request
	for rows.Next() {
		r, err := scanRequest(rows)
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

func (p *PgRepository) Create(ctx context.Context, r *Request) (*Request, error) {
	row := db.Conn(ctx, p.pool).QueryRow(ctx, `
		INSERT INTO leave_requests (
			id, doctor_id, leave_type, start_date, end_date, session, reason, status,
			admin_comment, reconciliation, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', '', $9, $9)
		RETURNING `+requestColumns,
		r.ID, r.DoctorID, r.Type, calendar.DateOf(r.StartDate), calendar.DateOf(r.EndDate),
		r.Session, r.Reason, r.Status, r.CreatedAt,
	)

	created, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("insert leave request: %w", err)
	}
	return created, nil
}

func (p *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := db.Conn(ctx, p.pool).QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM leave_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (p *PgRepository) Update(ctx context.Context, r *Request, from Status) (*Request, error) {
	row := db.Conn(ctx, p.pool).QueryRow(ctx, `
		UPDATE leave_requests
		SET status = $3,
		    admin_comment = $4,
		    reconciliation = $5,
		    updated_at = $6,
		    decided_at = $7
		WHERE id = $1 AND status = $2
		RETURNING `+requestColumns,
		r.ID, from, r.Status, r.AdminComment, r.Reconciliation, r.UpdatedAt, r.DecidedAt,
	)

	updated, err := scanRequest(row)
	if errors.Is(err, ErrRequestNotFound) {
		return nil, ErrStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("update leave request: %w", err)
	}
	return updated, nil
}

func (p *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Request, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT `+requestColumns+`
		FROM leave_requests
		WHERE doctor_id = $1
		ORDER BY created_at DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

func (p *PgRepository) ListPending(ctx context.Context) ([]Request, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT `+requestColumns+`
		FROM leave_requests
		WHERE status = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

func (p *PgRepository) ListOutstanding(ctx context.Context) ([]Request, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT `+requestColumns+`
		FROM leave_requests
		WHERE status = 'pending' AND reconciliation = 'outstanding'
		ORDER BY updated_at
	`)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}
