package handler

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
)

type stubEnrollmentService struct {
	enrollFn  func(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error)
	profileFn func(ctx context.Context, userID string, limit int) (*ports.UserProfile, error)
}

func (s *stubEnrollmentService) Enroll(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error) {
	return s.enrollFn(ctx, sample)
}

func (s *stubEnrollmentService) GetReference(context.Context, string) (*domain.EnrollmentRecord, error) {
	return nil, domain.ErrNotFound
}

func (s *stubEnrollmentService) Profile(ctx context.Context, userID string, limit int) (*ports.UserProfile, error) {
	return s.profileFn(ctx, userID, limit)
}

type stubVerificationService struct {
	verifyFn       func(ctx context.Context, in ports.VerifyInput) (*domain.VerificationVerdict, error)
	secureVerifyFn func(ctx context.Context, in ports.SecureVerifyInput) (*domain.VerificationVerdict, error)
}

func (s *stubVerificationService) Verify(ctx context.Context, in ports.VerifyInput) (*domain.VerificationVerdict, error) {
	return s.verifyFn(ctx, in)
}

func (s *stubVerificationService) SecureVerify(ctx context.Context, in ports.SecureVerifyInput) (*domain.VerificationVerdict, error) {
	return s.secureVerifyFn(ctx, in)
}

type stubChallengeService struct {
	issueFn func(ctx context.Context, caller string) (*domain.Challenge, error)
}

func (s *stubChallengeService) Issue(ctx context.Context, caller string) (*domain.Challenge, error) {
	return s.issueFn(ctx, caller)
}

func (s *stubChallengeService) Consume(context.Context, string, string) (bool, *domain.Challenge, error) {
	return false, nil, domain.ErrChallengeNotFound
}

func (s *stubChallengeService) Resolve(context.Context, string, ...string) (string, error) {
	return "", domain.ErrChallengeNotFound
}

type stubAuthService struct {
	registerFn func(ctx context.Context, username, password, role string) (*domain.User, error)
	loginFn    func(ctx context.Context, username, password string) (string, *domain.User, error)
}

func (s *stubAuthService) Register(ctx context.Context, username, password, role string) (*domain.User, error) {
	return s.registerFn(ctx, username, password, role)
}

func (s *stubAuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	return s.loginFn(ctx, username, password)
}

// newEcho returns an Echo instance with the validator the router installs.
func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

// wavHeader is enough for the RIFF/WAVE sniffing; the stubs never decode it.
var wavHeader = append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)

type upload struct {
	filename    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, target string, fields map[string]string, file *upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, file.filename))
		if file.contentType != "" {
			h.Set("Content-Type", file.contentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(file.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}
