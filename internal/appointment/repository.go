package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrStatusChanged       = errors.New("appointment status changed concurrently")
)

// Change describes one status transition. Nil fields are left untouched.
type Change struct {
	To            Status
	At            time.Time
	Reason        *string
	Actor         *Actor
	Outcome       *string
	RescheduledTo *uuid.UUID
}

// Repository contains all DB interactions needed by the engine.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// Capacity and queue reads
	CountActiveInSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, slotStart calendar.TimeOfDay) (int, error)
	ListForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	ListActiveInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// ListActiveUpTo returns active appointments of any doctor dated on or before date.
	ListActiveUpTo(ctx context.Context, date time.Time) ([]Appointment, error)

	// Conditional updates; ErrStatusChanged when the row is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from Status, ch Change) (*Appointment, error)
	MoveSlot(ctx context.Context, id uuid.UUID, from Status, start, end calendar.TimeOfDay, at time.Time) (*Appointment, error)

	// Leave notices
	ListPendingLeaveNotices(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	MarkLeaveNoticeSent(ctx context.Context, ids []uuid.UUID) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// TokenRepository hands out per (doctor, date) token numbers. NextToken must
// be an atomic increment, never read-then-write.
type TokenRepository interface {
	NextToken(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	PeekToken(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
}
