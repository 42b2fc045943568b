package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/api/handler"
)

// The router registers Prometheus collectors, so it is built once per binary.
func TestRouter(t *testing.T) {
	e := NewRouter(Deps{
		HealthChecks: map[string]handler.Checker{
			"redis": func(context.Context) error { return nil },
		},
		JWTSecret:     "test-secret",
		MaxAudioBytes: 1 << 20,
		CORSOrigins:   []string{"*"},
		Logger:        zerolog.Nop(),
	})

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
		contains string
	}{
		{name: "liveness", method: http.MethodGet, target: "/health", wantCode: http.StatusOK, contains: "healthy"},
		{name: "readiness", method: http.MethodGet, target: "/health/ready", wantCode: http.StatusOK, contains: `"redis"`},
		{name: "admin without token", method: http.MethodGet, target: "/v1/admin/users/alice", wantCode: http.StatusUnauthorized},
		{name: "register without token", method: http.MethodPost, target: "/v1/admin/operators", wantCode: http.StatusUnauthorized},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantCode: http.StatusOK, contains: "go_goroutines"},
		{name: "unknown route", method: http.MethodGet, target: "/nope", wantCode: http.StatusNotFound, contains: `"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.contains != "" && !strings.Contains(rec.Body.String(), tt.contains) {
				t.Fatalf("expected body to contain %s, got %s", tt.contains, rec.Body.String())
			}
		})
	}
}
