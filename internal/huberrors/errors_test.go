package huberrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("embed batch 2: %w", NewProviderUnavailableError("openai", cause))

	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, "embed batch 2: openai provider unavailable: connection refused", err.Error())
}

func TestInvariantViolationError(t *testing.T) {
	tests := []struct {
		name string
		err  *InvariantViolationError
		want string
	}{
		{"with record", NewInvariantViolationError("acme", "negative ACV"), "negative ACV (record acme)"},
		{"without record", NewInvariantViolationError("", "confidence out of range"), "confidence out of range"},
		{"empty", &InvariantViolationError{}, "invariant violation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrInvariantViolation)
		})
	}
}

func TestAlreadyRunningMatchesConflict(t *testing.T) {
	err := fmt.Errorf("start run: %w", ErrAlreadyRunning)

	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestNotFoundAndValidationMessages(t *testing.T) {
	assert.Equal(t, "theme not found", NewNotFoundError("theme", "").Error())
	assert.Equal(t, "resource not found", (&NotFoundError{}).Error())
	assert.Equal(t, "validation failed for field: min_samples", NewValidationError("min_samples", "").Error())
	assert.Equal(t, "weights must be non-negative", NewValidationError("weights", "weights must be non-negative").Error())
}
