package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError_StatusDefaults(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		status int
	}{
		{"business error defaults to 400", ErrDuplicateAccount, http.StatusBadRequest},
		{"explicit unauthorized", ErrInvalidCredential, http.StatusUnauthorized},
		{"rate limit", ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"internal fault", ErrUnknown, http.StatusInternalServerError},
		{"unknown code collapses", 999999, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewError(tt.code)
			assert.Equal(t, tt.status, err.Status)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestNewError_ReturnsCopy(t *testing.T) {
	first := NewError(ErrInvalidParams)
	first.Message = "changed"

	second := NewError(ErrInvalidParams)
	assert.NotEqual(t, "changed", second.Message)
}

func TestFrom(t *testing.T) {
	custom := NewError(ErrUserNotFound)
	wrapped := fmt.Errorf("lookup: %w", custom)

	assert.Nil(t, From(nil))
	assert.Same(t, custom, From(custom))
	assert.Same(t, custom, From(wrapped))

	unknown := From(errors.New("connection reset"))
	require.NotNil(t, unknown)
	assert.Equal(t, ErrUnknown, unknown.Code)
	assert.NotContains(t, unknown.Message, "connection reset")
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("login: %w", NewError(ErrInvalidCredential))

	assert.True(t, HasCode(err, ErrInvalidCredential))
	assert.False(t, HasCode(err, ErrUserNotFound))
	assert.False(t, HasCode(errors.New("plain"), ErrUnknown))
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError(FieldError{Field: "email", Msg: "must be a valid email"})

	assert.Equal(t, ErrInvalidParams, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	require.Len(t, err.Fields, 1)
	assert.Equal(t, "email", err.Fields[0].Field)
}
