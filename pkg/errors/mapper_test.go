package errors

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestMapper_MapErrorToHTTP(t *testing.T) {
	m := NewMapper(zerolog.Nop())

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, fasthttp.StatusOK},
		{"validation", NewValidationError("bad interval"), fasthttp.StatusBadRequest},
		{"wrapped conflict", fmt.Errorf("start: %w", NewConflictError("already running")), fasthttp.StatusConflict},
		{"not found", NewNotFoundErrorf("slot %d", 3), fasthttp.StatusNotFound},
		{"permission", NewPermissionError("admin only"), fasthttp.StatusForbidden},
		{"unavailable", NewServiceUnavailableError("no accounts"), fasthttp.StatusServiceUnavailable},
		{"internal", NewInternalError("boom"), fasthttp.StatusInternalServerError},
		{"unknown", fmt.Errorf("plain"), fasthttp.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := m.MapErrorToHTTP(tc.err)
			require.Equal(t, tc.code, code)
		})
	}
}

func TestKindHelpers(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewConflictError("dup"))
	require.True(t, IsConflict(err))
	require.False(t, IsValidation(err))
	require.True(t, IsNotFound(NewNotFoundError("x")))
}
