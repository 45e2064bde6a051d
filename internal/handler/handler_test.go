package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func newTestHandler(checks map[string]HealthChecker) *Handler {
	cfg := &config.Config{URLs: config.URLConfig{
		PublicWeb:    "https://app.example.com/",
		OAuthFailure: "/login",
	}}
	return New(logger.Nop(), cfg, Services{}, checks)
}

func TestHealth(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		checks   map[string]HealthChecker
		status   int
		contains string
	}{
		{"no dependencies", nil, http.StatusOK, `"status":"healthy"`},
		{"all healthy", map[string]HealthChecker{"postgres": ok}, http.StatusOK, `"postgres":"healthy"`},
		{"one down", map[string]HealthChecker{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, `"redis":"unhealthy"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestHandler(tt.checks).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestReady(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := checkFunc(func(context.Context) error { return errors.New("timeout") })
	rec = httptest.NewRecorder()
	newTestHandler(map[string]HealthChecker{"redis": down}).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis not ready")
}

func TestReadJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name     string
		body     string
		optional bool
		wantErr  bool
	}{
		{"valid", `{"name":"ana"}`, false, false},
		{"empty required", "", false, true},
		{"empty optional", "", true, false},
		{"unknown field", `{"name":"ana","role":"administrator"}`, false, true},
		{"malformed", `{"name":`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := readJSON(r, &p, tt.optional)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestGoogleCallbackDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(nil).GoogleCallback(rec, httptest.NewRequest(http.MethodGet, "/api/auth/googleOAuth/callback?code=x&state=y", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com/login?error=OAUTH_FAILED", rec.Header().Get("Location"))
}

func TestGoogleOAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	err := newTestHandler(nil).GoogleOAuth(rec, httptest.NewRequest(http.MethodGet, "/api/auth/googleOAuth", nil))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
