package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
)

func adminContext(e *echo.Echo, target, userID, role string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("user_id")
	c.SetParamValues(userID)
	if role != "" {
		c.Set("username", "ops")
		c.Set("role", role)
	}
	return c, rec
}

func TestAdminHandler_GetUser(t *testing.T) {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	e := newEcho()
	stub := &stubEnrollmentService{
		profileFn: func(ctx context.Context, userID string, limit int) (*ports.UserProfile, error) {
			if userID != "alice" || limit != 5 {
				t.Fatalf("unexpected args: %s %d", userID, limit)
			}
			return &ports.UserProfile{
				Identity: &domain.UserIdentity{
					UserID:          "alice",
					CreatedAt:       created,
					LastEnrolledAt:  created.Add(time.Hour),
					EnrollmentCount: 2,
				},
				Enrollments: []*domain.EnrollmentRecord{
					{ID: "r2", UserID: "alice", Embedding: []float32{0.25, 0.5}, Fingerprint: []uint32{7}, ModelVersion: "v1", CreatedAt: created.Add(time.Hour)},
					{ID: "r1", UserID: "alice", Embedding: []float32{0.5, 0.25}, ModelVersion: "v1", CreatedAt: created},
				},
			}, nil
		},
	}
	handler := NewAdminHandler(stub, zerolog.Nop())

	c, rec := adminContext(e, "/v1/admin/users/alice?limit=5", "alice", domain.RoleAuditor)
	if err := handler.GetUser(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "embedding") || strings.Contains(body, "fingerprint") {
		t.Fatalf("profile leaked voice features: %s", body)
	}

	var resp userProfileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.UserID != "alice" || resp.EnrollmentCount != 2 || len(resp.Enrollments) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Enrollments[0].ID != "r2" {
		t.Fatalf("expected newest enrollment first, got %s", resp.Enrollments[0].ID)
	}
}

func TestAdminHandler_GetUser_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		userID   string
		role     string
		svcErr   error
		wantErr  error
		wantCode int
	}{
		{name: "no claims", target: "/v1/admin/users/alice", userID: "alice", wantCode: http.StatusUnauthorized},
		{name: "bad limit", target: "/v1/admin/users/alice?limit=0", userID: "alice", role: domain.RoleAdmin, wantErr: domain.ErrValidation},
		{name: "limit too large", target: "/v1/admin/users/alice?limit=1000", userID: "alice", role: domain.RoleAdmin, wantErr: domain.ErrValidation},
		{name: "invalid user id", target: "/v1/admin/users/x", userID: "bad id", role: domain.RoleAdmin, wantErr: domain.ErrValidation},
		{name: "unknown user", target: "/v1/admin/users/ghost", userID: "ghost", role: domain.RoleAdmin, svcErr: domain.ErrNotFound, wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			stub := &stubEnrollmentService{
				profileFn: func(ctx context.Context, userID string, limit int) (*ports.UserProfile, error) {
					if tt.svcErr == nil {
						t.Fatalf("should not be called")
					}
					return nil, tt.svcErr
				},
			}
			handler := NewAdminHandler(stub, zerolog.Nop())

			c, _ := adminContext(e, tt.target, tt.userID, tt.role)
			err := handler.GetUser(c)
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantCode != 0 {
				var he *echo.HTTPError
				if !errors.As(err, &he) || he.Code != tt.wantCode {
					t.Fatalf("expected HTTP %d, got %v", tt.wantCode, err)
				}
			}
		})
	}
}
