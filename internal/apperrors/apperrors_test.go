package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_HTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		InvalidRequest:       http.StatusBadRequest,
		NotFound:             http.StatusNotFound,
		MethodNotAllowed:     http.StatusMethodNotAllowed,
		HandlerTimeout:       http.StatusGatewayTimeout,
		HandlerOverload:      http.StatusServiceUnavailable,
		HandlerFault:         http.StatusInternalServerError,
		DoubleResponse:       http.StatusInternalServerError,
		RoomFull:             http.StatusConflict,
		UnknownRoom:          http.StatusNotFound,
		UnknownClient:        http.StatusNotFound,
		CacheTooLarge:        http.StatusRequestEntityTooLarge,
		CacheTierUnavailable: http.StatusOK,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), "kind %s", kind)
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "unknown", Kind(999).String())
}

func TestAppError_ToBody_HidesDetailsOutsideDevMode(t *testing.T) {
	err := Wrap(HandlerFault, errors.New("stack trace here"), "handler failed")

	body := err.ToBody(false)
	assert.Equal(t, "handler failed", body.Error)
	assert.Equal(t, "handler_fault", body.Code)
	assert.Empty(t, body.Details)

	devBody := err.ToBody(true)
	assert.Equal(t, "stack trace here", devBody.Details)
}

func TestAppError_ToBody_PrefersExplicitDetails(t *testing.T) {
	err := WithDetails(InvalidRequest, "bad input", "field x is required")
	body := err.ToBody(true)
	assert.Equal(t, "field x is required", body.Details)
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Wrap(HandlerFault, inner, "msg")
	assert.ErrorIs(t, err, inner)
}

func TestAs_FindsWrappedAppError(t *testing.T) {
	ae := New(NotFound, "missing")
	wrapped := &wrapper{err: ae}

	found, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ae, found)
}

func TestAs_ReturnsFalseForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }
