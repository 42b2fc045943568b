package ports

import (
	"context"
	"time"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

// ChallengeStore keeps issued challenges until expiry plus a retention
// window.
type ChallengeStore interface {
	// Save stores ch and records it as the caller's latest challenge and as
	// the latest challenge for its phrase, both per caller and overall. The
	// record is dropped after retain.
	Save(ctx context.Context, ch *domain.Challenge, retain time.Duration) error
	// Consume atomically flips the consumed flag. It fails with
	// domain.ErrChallengeNotFound, domain.ErrChallengeExpired (checked first,
	// against now) or domain.ErrChallengeConsumed, and returns the challenge
	// on success.
	Consume(ctx context.Context, id string, now time.Time) (*domain.Challenge, error)
	// LatestForPhrase returns the id of the most recent challenge issued to
	// caller with the normalized phrase. An empty caller searches challenges
	// issued to anyone.
	LatestForPhrase(ctx context.Context, caller, phrase string) (string, error)
	// LastPhrase returns the phrase most recently issued to caller, or "".
	LastPhrase(ctx context.Context, caller string) (string, error)
}

// SampleHistory remembers recent verification samples per user so replays
// of earlier attempts can be recognised.
type SampleHistory interface {
	Recent(ctx context.Context, userID string) ([]domain.SampleTrace, error)
	Remember(ctx context.Context, userID string, trace domain.SampleTrace) error
}
