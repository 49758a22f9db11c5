package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRecordNotFound = errors.New("schedule record not found")

// Repository persists schedule records. Replace is the only write: it
// supersedes the active record for (doctor, date) and inserts rec as the new
// active one, atomically.
type Repository interface {
	GetActive(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Record, error)
	Replace(ctx context.Context, rec *Record) (*Record, error)

	// ListActive returns active records with from <= date <= to ordered by date.
	ListActive(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Record, error)

	// History returns every record ever stored for (doctor, date), newest first.
	History(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Record, error)
}
