package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
)

const testMaxBytes = 1 << 16

func wavUpload() *upload {
	return &upload{filename: "sample.wav", contentType: "audio/wav", data: wavHeader}
}

func enrollOK() *stubEnrollmentService {
	return &stubEnrollmentService{
		enrollFn: func(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error) {
			return &domain.EnrollmentRecord{ID: "r1", UserID: sample.UserID}, nil
		},
	}
}

func TestVoiceHandler_Enroll_Success(t *testing.T) {
	e := newEcho()
	var got domain.AudioSample
	stub := &stubEnrollmentService{
		enrollFn: func(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error) {
			got = sample
			return &domain.EnrollmentRecord{ID: "r1", UserID: sample.UserID}, nil
		},
	}
	h := NewVoiceHandler(stub, &stubVerificationService{}, testMaxBytes)

	req := multipartRequest(t, "/enroll-voice", map[string]string{"user_id": "alice"}, wavUpload())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Enroll(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.UserID != "alice" || got.Format != "audio/wav" || len(got.Data) != len(wavHeader) {
		t.Fatalf("unexpected sample: user=%q format=%q bytes=%d", got.UserID, got.Format, len(got.Data))
	}

	var resp enrollResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "success" || resp.UserID != "alice" || resp.Message != "Voice enrolled for alice" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestVoiceHandler_Enroll_OctetStreamSniffed(t *testing.T) {
	e := newEcho()
	var format string
	stub := &stubEnrollmentService{
		enrollFn: func(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error) {
			format = sample.Format
			return &domain.EnrollmentRecord{UserID: sample.UserID}, nil
		},
	}
	h := NewVoiceHandler(stub, &stubVerificationService{}, testMaxBytes)

	file := &upload{filename: "blob", contentType: "application/octet-stream", data: wavHeader}
	req := multipartRequest(t, "/enroll-voice", map[string]string{"user_id": "alice"}, file)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := h.Enroll(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if format != "audio/wav" {
		t.Fatalf("expected sniffed audio/wav, got %q", format)
	}
}

func TestVoiceHandler_Enroll_InputErrors(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		file     *upload
		maxBytes int64
		wantErr  error
		wantCode int
	}{
		{
			name:    "missing user_id",
			fields:  map[string]string{},
			file:    wavUpload(),
			wantErr: domain.ErrValidation,
		},
		{
			name:    "invalid user_id",
			fields:  map[string]string{"user_id": "bad id!"},
			file:    wavUpload(),
			wantErr: domain.ErrValidation,
		},
		{
			name:    "missing audio",
			fields:  map[string]string{"user_id": "alice"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "empty audio",
			fields:  map[string]string{"user_id": "alice"},
			file:    &upload{filename: "a.wav", contentType: "audio/wav"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "mp3",
			fields:  map[string]string{"user_id": "alice"},
			file:    &upload{filename: "a.mp3", contentType: "audio/mpeg", data: []byte("ID3....")},
			wantErr: domain.ErrUnsupportedMedia,
		},
		{
			name:    "octet-stream without RIFF header",
			fields:  map[string]string{"user_id": "alice"},
			file:    &upload{filename: "blob", contentType: "application/octet-stream", data: []byte("not audio at all")},
			wantErr: domain.ErrUnsupportedMedia,
		},
		{
			name:     "too large",
			fields:   map[string]string{"user_id": "alice"},
			file:     wavUpload(),
			maxBytes: 16,
			wantCode: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			stub := &stubEnrollmentService{
				enrollFn: func(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error) {
					t.Fatalf("should not be called")
					return nil, nil
				},
			}
			maxBytes := tt.maxBytes
			if maxBytes == 0 {
				maxBytes = testMaxBytes
			}
			h := NewVoiceHandler(stub, &stubVerificationService{}, maxBytes)

			req := multipartRequest(t, "/enroll-voice", tt.fields, tt.file)
			c := e.NewContext(req, httptest.NewRecorder())

			err := h.Enroll(c)
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

func TestVoiceHandler_Enroll_ServiceError(t *testing.T) {
	e := newEcho()
	stub := &stubEnrollmentService{
		enrollFn: func(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error) {
			return nil, domain.ErrUnintelligibleAudio
		},
	}
	h := NewVoiceHandler(stub, &stubVerificationService{}, testMaxBytes)

	req := multipartRequest(t, "/enroll-voice", map[string]string{"user_id": "alice"}, wavUpload())
	c := e.NewContext(req, httptest.NewRecorder())

	if err := h.Enroll(c); !errors.Is(err, domain.ErrUnintelligibleAudio) {
		t.Fatalf("expected ErrUnintelligibleAudio, got %v", err)
	}
}

func TestVoiceHandler_Verify_Success(t *testing.T) {
	e := newEcho()
	stub := &stubVerificationService{
		verifyFn: func(ctx context.Context, in ports.VerifyInput) (*domain.VerificationVerdict, error) {
			if in.UserID != "alice" || in.Threshold == nil || *in.Threshold != 0.9 {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &domain.VerificationVerdict{
				IdentityVerified: true,
				LivenessVerified: true,
				SimilarityScore:  0.93,
				SpeakerScore:     0.93,
				State:            domain.StateDecided,
			}, nil
		},
	}
	h := NewVoiceHandler(enrollOK(), stub, testMaxBytes)

	req := multipartRequest(t, "/verify-voice", map[string]string{"user_id": "alice", "threshold": "0.9"}, wavUpload())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Verify(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp verifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "success" || !resp.IsMatch || !resp.LivenessVerified || resp.Score != 0.93 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Message != "Verification completed. Score: 0.930, Match: true" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestVoiceHandler_Verify_Rejected(t *testing.T) {
	e := newEcho()
	stub := &stubVerificationService{
		verifyFn: func(ctx context.Context, in ports.VerifyInput) (*domain.VerificationVerdict, error) {
			if in.Threshold != nil {
				t.Fatalf("threshold should be unset")
			}
			return &domain.VerificationVerdict{
				Reason: domain.ReasonUnintelligibleAudio,
				State:  domain.StateRejected,
			}, nil
		},
	}
	h := NewVoiceHandler(enrollOK(), stub, testMaxBytes)

	req := multipartRequest(t, "/verify-voice", map[string]string{"user_id": "alice"}, wavUpload())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Verify(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp verifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "rejected" || resp.IsMatch || resp.Reason != "unintelligible_audio" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestVoiceHandler_Verify_Errors(t *testing.T) {
	t.Run("non-numeric threshold", func(t *testing.T) {
		e := newEcho()
		stub := &stubVerificationService{
			verifyFn: func(ctx context.Context, in ports.VerifyInput) (*domain.VerificationVerdict, error) {
				t.Fatalf("should not be called")
				return nil, nil
			},
		}
		h := NewVoiceHandler(enrollOK(), stub, testMaxBytes)
		req := multipartRequest(t, "/verify-voice", map[string]string{"user_id": "alice", "threshold": "high"}, wavUpload())
		c := e.NewContext(req, httptest.NewRecorder())

		if err := h.Verify(c); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		e := newEcho()
		stub := &stubVerificationService{
			verifyFn: func(ctx context.Context, in ports.VerifyInput) (*domain.VerificationVerdict, error) {
				return nil, domain.ErrNotFound
			},
		}
		h := NewVoiceHandler(enrollOK(), stub, testMaxBytes)
		req := multipartRequest(t, "/verify-voice", map[string]string{"user_id": "ghost"}, wavUpload())
		c := e.NewContext(req, httptest.NewRecorder())

		if err := h.Verify(c); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestVoiceHandler_SecureVerify_Verdict(t *testing.T) {
	e := newEcho()
	const challengeID = "0b6f1c52-8f3e-4a57-9a3c-2f1d7e0c9b11"
	stub := &stubVerificationService{
		secureVerifyFn: func(ctx context.Context, in ports.SecureVerifyInput) (*domain.VerificationVerdict, error) {
			if in.ChallengeID != challengeID || in.ChallengePhrase != "Blue horizon eight" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &domain.VerificationVerdict{
				IdentityVerified: true,
				LivenessVerified: true,
				SpeakerScore:     0.9,
				SimilarityScore:  0.9,
				LivenessScore:    0.8,
				Transcript:       "blue horizon eight",
				ChallengePhrase:  "Blue horizon eight",
				State:            domain.StateDecided,
			}, nil
		},
	}
	h := NewVoiceHandler(enrollOK(), stub, testMaxBytes)

	fields := map[string]string{
		"user_id":          "alice",
		"challenge_phrase": "Blue horizon eight",
		"challenge_id":     challengeID,
	}
	req := multipartRequest(t, "/secure-verify-voice", fields, wavUpload())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SecureVerify(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, key := range []string{
		"identity_verified", "liveness_verified", "speaker_score", "transcript",
		"challenge_phrase", "similarity_score", "liveness_score",
	} {
		if _, ok := resp[key]; !ok {
			t.Fatalf("verdict missing %q: %v", key, resp)
		}
	}
	if resp["status"] != "decided" || resp["transcript"] != "blue horizon eight" {
		t.Fatalf("unexpected verdict: %v", resp)
	}
	if _, ok := resp["reason"]; ok {
		t.Fatalf("decided verdict should not carry a reason: %v", resp)
	}
}

func TestVoiceHandler_SecureVerify_RejectedIs200(t *testing.T) {
	e := newEcho()
	stub := &stubVerificationService{
		secureVerifyFn: func(ctx context.Context, in ports.SecureVerifyInput) (*domain.VerificationVerdict, error) {
			if len(in.Callers) != 2 || in.Callers[0] != "user:alice" || in.Callers[1] != "ip:192.0.2.1" {
				t.Fatalf("unexpected callers: %v", in.Callers)
			}
			return &domain.VerificationVerdict{
				Reason: domain.ReasonChallengeExpired,
				State:  domain.StateRejected,
			}, nil
		},
	}
	h := NewVoiceHandler(enrollOK(), stub, testMaxBytes)

	fields := map[string]string{"user_id": "alice", "challenge_phrase": "Learning never stops"}
	req := multipartRequest(t, "/secure-verify-voice", fields, wavUpload())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SecureVerify(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp verdictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "rejected" || resp.Reason != "challenge_expired" || resp.IdentityVerified || resp.LivenessVerified {
		t.Fatalf("unexpected verdict: %+v", resp)
	}
}

func TestVoiceHandler_SecureVerify_InvalidForm(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{name: "missing phrase", fields: map[string]string{"user_id": "alice"}},
		{name: "malformed challenge id", fields: map[string]string{
			"user_id": "alice", "challenge_phrase": "Learning never stops", "challenge_id": "nope",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			stub := &stubVerificationService{
				secureVerifyFn: func(ctx context.Context, in ports.SecureVerifyInput) (*domain.VerificationVerdict, error) {
					t.Fatalf("should not be called")
					return nil, nil
				},
			}
			h := NewVoiceHandler(enrollOK(), stub, testMaxBytes)
			req := multipartRequest(t, "/secure-verify-voice", tt.fields, wavUpload())
			c := e.NewContext(req, httptest.NewRecorder())

			if err := h.SecureVerify(c); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}
