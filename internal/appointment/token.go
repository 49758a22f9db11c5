package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
)

// TokenAllocator assigns dense, strictly increasing tokens per doctor and
// date starting at 1. Tokens are never released: a cancelled appointment keeps
// its number and the queue skips it by status.
type TokenAllocator struct {
	repo TokenRepository
}

func NewTokenAllocator(repo TokenRepository) *TokenAllocator {
	return &TokenAllocator{repo: repo}
}

// Allocate consumes the next token. Callers allocate only after every other
// booking check has passed, inside the booking transaction, so a failed
// booking never leaves a gap.
func (t *TokenAllocator) Allocate(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	token, err := t.repo.NextToken(ctx, doctorID, calendar.DateOf(date))
	if err != nil {
		return 0, fmt.Errorf("allocate token: %w", err)
	}
	return token, nil
}

// Peek returns the token the next booking would receive. Display only.
func (t *TokenAllocator) Peek(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	token, err := t.repo.PeekToken(ctx, doctorID, calendar.DateOf(date))
	if err != nil {
		return 0, fmt.Errorf("peek token: %w", err)
	}
	return token, nil
}
