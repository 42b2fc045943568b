package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "validation keeps its message",
			err:      fmt.Errorf("%w: user_id is required", domain.ErrValidation),
			wantCode: http.StatusBadRequest,
			wantMsg:  "validation failed: user_id is required",
		},
		{name: "unsupported media", err: fmt.Errorf("%w: audio/mpeg", domain.ErrUnsupportedMedia), wantCode: http.StatusUnsupportedMediaType},
		{name: "unintelligible", err: domain.ErrUnintelligibleAudio, wantCode: http.StatusUnprocessableEntity},
		{name: "not enrolled", err: fmt.Errorf("latest enrollment: %w", domain.ErrNotFound), wantCode: http.StatusNotFound, wantMsg: "user not enrolled"},
		{name: "bad credentials", err: domain.ErrInvalidCredentials, wantCode: http.StatusUnauthorized},
		{name: "forbidden", err: domain.ErrForbidden, wantCode: http.StatusForbidden},
		{name: "user exists", err: domain.ErrUserExists, wantCode: http.StatusConflict},
		{name: "echo http error", err: echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large"), wantCode: http.StatusRequestEntityTooLarge, wantMsg: "request body too large"},
		{
			name:     "model mismatch",
			err:      fmt.Errorf("%w: enrolled with v0", domain.ErrModelVersionMismatch),
			wantCode: http.StatusInternalServerError,
			wantMsg:  "enrollment was produced by a different model; re-enroll the user",
		},
		{name: "transcriber down", err: domain.ErrTranscriberUnavailable, wantCode: http.StatusInternalServerError, wantMsg: "transcription service unavailable"},
		{name: "storage hides detail", err: fmt.Errorf("%w: dial tcp 10.0.0.5:27017", domain.ErrStorage), wantCode: http.StatusInternalServerError, wantMsg: "internal server error"},
		{name: "unknown", err: errors.New("boom"), wantCode: http.StatusInternalServerError, wantMsg: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/verify-voice", nil), rec)

			NewHTTPErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Error == "" {
				t.Fatalf("error envelope is empty")
			}
			if tt.wantMsg != "" && resp.Error != tt.wantMsg {
				t.Fatalf("expected message %q, got %q", tt.wantMsg, resp.Error)
			}
		})
	}
}

func TestHTTPErrorHandler_CommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := c.String(http.StatusOK, "done"); err != nil {
		t.Fatalf("write: %v", err)
	}

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("late"), c)

	if rec.Body.String() != "done" {
		t.Fatalf("committed response was modified: %q", rec.Body.String())
	}
}
