package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindThroughWrapping(t *testing.T) {
	base := WithCode(ErrSlotUnavailable, CodeDoctorUnavailable, "doctor %s is on leave", "d1")
	wrapped := fmt.Errorf("book: %w", base)

	assert.True(t, errors.Is(wrapped, ErrSlotUnavailable))
	assert.False(t, errors.Is(wrapped, ErrSlotFull))
	assert.Equal(t, CodeDoctorUnavailable, CodeOf(wrapped))
	assert.Equal(t, "slot_unavailable", KindName(wrapped))
	assert.Equal(t, "doctor d1 is on leave", base.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("publish failed")
	err := Wrap(ErrReconciliationIncomplete, cause, "reconcile %s", "2025-07-15")

	assert.True(t, errors.Is(err, ErrReconciliationIncomplete))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "reconcile 2025-07-15: publish failed", err.Error())
}

func TestKindName(t *testing.T) {
	cases := map[error]string{
		Validation("x"):                 "validation_error",
		InvalidState("x"):               "invalid_state",
		New(ErrSlotFull, "x"):           "slot_full",
		New(ErrConcurrencyConflict, ""): "concurrency_conflict",
		NotFound("x"):                   "not_found",
		New(ErrForbidden, "x"):          "forbidden",
		errors.New("boom"):              "internal_error",
	}
	for err, want := range cases {
		assert.Equal(t, want, KindName(err), err.Error())
	}
}
