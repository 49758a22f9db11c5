package leave

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRequestNotFound = errors.New("leave request not found")
	ErrStatusChanged   = errors.New("leave request status changed concurrently")
)

type Repository interface {
	Create(ctx context.Context, r *Request) (*Request, error)
	Get(ctx context.Context, id uuid.UUID) (*Request, error)

	// Update writes status, comment, reconciliation and timestamps of r,
	// conditional on the stored status still being from.
	Update(ctx context.Context, r *Request, from Status) (*Request, error)

	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Request, error)
	ListPending(ctx context.Context) ([]Request, error)
	ListOutstanding(ctx context.Context) ([]Request, error)
}
