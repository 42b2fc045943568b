package ports

import (
	"context"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
)

// FeatureExtractor turns an upload into features. Failing uploads yield
// domain.ErrUnintelligibleAudio or domain.ErrValidation.
type FeatureExtractor interface {
	Extract(ctx context.Context, data []byte) (*audio.Features, error)
	ModelVersion() string
}

// Runner executes CPU-bound work keyed by user, at most one job per key at a
// time. When Submit returns a context error the job may still be running, so
// anything it writes must only be read after a nil return.
type Runner interface {
	Submit(ctx context.Context, key string, job func(ctx context.Context) error) error
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte) (string, error)
}

// LivenessDetector assesses whether a sample is a live utterance.
type LivenessDetector interface {
	Assess(ctx context.Context, userID string, f *audio.Features) (domain.LivenessAssessment, error)
	// Remember adds a verification sample to the user's replay history.
	Remember(ctx context.Context, userID string, f *audio.Features) error
}

// ChallengeService issues and redeems challenges.
type ChallengeService interface {
	Issue(ctx context.Context, caller string) (*domain.Challenge, error)
	// Consume marks the challenge consumed and reports whether phrase matches
	// it. The challenge is consumed even when the phrase does not match.
	Consume(ctx context.Context, challengeID, phrase string) (bool, *domain.Challenge, error)
	// Resolve finds the challenge id for clients that only send the phrase.
	// Challenges issued to callers are preferred in order; the latest
	// challenge with that phrase from any caller is the fallback.
	Resolve(ctx context.Context, phrase string, callers ...string) (string, error)
}

// UserProfile is the admin view of an identity.
type UserProfile struct {
	Identity    *domain.UserIdentity
	Enrollments []*domain.EnrollmentRecord
}

// EnrollmentService enrolls voices and serves references.
type EnrollmentService interface {
	Enroll(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error)
	GetReference(ctx context.Context, userID string) (*domain.EnrollmentRecord, error)
	Profile(ctx context.Context, userID string, limit int) (*UserProfile, error)
}

// VerifyInput carries a plain verification request.
type VerifyInput struct {
	UserID string
	Audio  []byte
	// Threshold overrides the configured speaker threshold when non-nil.
	Threshold *float64
}

// SecureVerifyInput carries a challenge-based verification request.
type SecureVerifyInput struct {
	UserID          string
	ChallengeID     string // optional
	ChallengePhrase string
	Audio           []byte

	// Callers are the caller keys the challenge may have been issued under,
	// used when ChallengeID is empty.
	Callers []string
}

// VerificationService runs the verification state machine.
type VerificationService interface {
	Verify(ctx context.Context, in VerifyInput) (*domain.VerificationVerdict, error)
	SecureVerify(ctx context.Context, in SecureVerifyInput) (*domain.VerificationVerdict, error)
}
