package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	plain := NewServerError(http.StatusBadGateway, "upstream down")
	assert.Equal(t, "server_error: upstream down", plain.Error())

	wrapped := NewNetworkError("dial failed", stderrors.New("connection refused"))
	assert.Equal(t, "network_failure: dial failed (connection refused)", wrapped.Error())
	assert.ErrorContains(t, wrapped.Unwrap(), "connection refused")
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"unauthorized", NewUnauthorizedError(""), ErrorTypeUnauthorized},
		{"wrapped cancelled", fmt.Errorf("flow: %w", NewCancelledError("")), ErrorTypeCancelled},
		{"foreign error", stderrors.New("plain"), ErrorTypeUnknown},
		{"decoding", NewDecodingError("bad body", nil), ErrorTypeDecoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TypeOf(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsUnauthorized(NewUnauthorizedError("expired")))
	assert.False(t, IsUnauthorized(nil))
	assert.True(t, IsCancelled(NewCancelledError("user closed sheet")))
	assert.False(t, IsCancelled(NewServerError(500, "")))
}

func TestAs(t *testing.T) {
	assert.Nil(t, As(nil))

	appErr := NewServerError(503, "")
	assert.Same(t, appErr, As(fmt.Errorf("outer: %w", appErr)))

	converted := As(stderrors.New("mystery"))
	assert.Equal(t, ErrorTypeUnknown, converted.Type)
	assert.Equal(t, "mystery", converted.Message)
	assert.Equal(t, "Something went wrong. Please try again.", appErr.Message)
}
