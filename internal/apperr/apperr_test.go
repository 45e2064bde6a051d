package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsMatchAfterCopy(t *testing.T) {
	blocked := ErrAccountBlocked.WithDetails(map[string]any{"blockedAt": "2026-01-01T00:00:00Z"})
	assert.ErrorIs(t, blocked, ErrAccountBlocked)
	assert.NotErrorIs(t, blocked, ErrForbidden)

	wrapped := fmt.Errorf("refresh: %w", ErrTokenExpired.WithMessage("expired a while ago"))
	assert.ErrorIs(t, wrapped, ErrTokenExpired)
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	e := From(fmt.Errorf("handler: %w", ErrEmailTaken))
	assert.Equal(t, "EMAIL_TAKEN", e.Code)
	assert.Equal(t, http.StatusConflict, e.HTTPStatus())

	cause := errors.New("connection reset")
	internal := From(cause)
	assert.Equal(t, KindInternal, internal.Kind)
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus())
	assert.ErrorIs(t, internal, cause)
	assert.NotContains(t, internal.Message, "connection reset")
}

func TestKindStatus(t *testing.T) {
	tests := map[Kind]int{
		KindValidation:     http.StatusBadRequest,
		KindAuthentication: http.StatusUnauthorized,
		KindAuthorization:  http.StatusForbidden,
		KindConflict:       http.StatusConflict,
		KindNotFound:       http.StatusNotFound,
		KindRateLimited:    http.StatusTooManyRequests,
		KindInternal:       http.StatusInternalServerError,
	}
	for kind, status := range tests {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}

func TestValidationCarriesField(t *testing.T) {
	err := Validation("email", "invalid email address")
	assert.Equal(t, "VALIDATION_ERROR", err.Code)
	assert.Equal(t, "email", err.Field)
	assert.Equal(t, KindValidation, KindOf(err))
}
