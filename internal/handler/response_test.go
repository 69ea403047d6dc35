package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/domain"
)

func envelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestJSON_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, map[string]int{"n": 1})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := envelope(t, rec)
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "OK", env.Message)
	assert.Equal(t, map[string]any{"n": float64(1)}, env.Data)
}

func TestError_HidesInternalCause(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"bad request", domain.ErrBadRequest("invalid or missing fields: planType"), http.StatusBadRequest, "invalid or missing fields: planType"},
		{"unavailable", domain.ErrUnavailable("payment gateway unavailable", errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "payment gateway unavailable"},
		{"plain error", errors.New("pq: secret detail"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			env := envelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
			assert.NotContains(t, rec.Body.String(), "refused")
			assert.NotContains(t, rec.Body.String(), "secret detail")
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ A int }
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"A": 3}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &v))
	assert.Equal(t, 3, v.A)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	err := DecodeJSON(httptest.NewRecorder(), req, &v)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
}
