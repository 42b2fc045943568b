package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
)

// DefaultPhrases is the built-in challenge corpus.
var DefaultPhrases = []string{
	"Say 35 green apples",
	"Repeat 42 orange balloons",
	"I like yellow bananas",
	"My voice is my passport",
	"Open the red umbrella",
	"The sun sets at 6 PM",
	"Blue sky above the mountains",
	"Coffee tastes better in the morning",
	"Technology changes rapidly",
	"Music brings people together",
	"Reading is a wonderful hobby",
	"Exercise keeps you healthy",
	"Friendship is very important",
	"Learning never stops",
	"Nature is beautiful and peaceful",
	"Cooking can be very relaxing",
	"Travel broadens the mind",
	"Art expresses human creativity",
	"Science explains the world",
	"Kindness makes the world better",
}

// ChallengeConfig configures challenge issuance.
type ChallengeConfig struct {
	Phrases   []string
	TTL       time.Duration
	Retention time.Duration
}

type ChallengeService struct {
	store  ports.ChallengeStore
	cfg    ChallengeConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewChallengeService(store ports.ChallengeStore, cfg ChallengeConfig, logger zerolog.Logger) *ChallengeService {
	if len(cfg.Phrases) == 0 {
		cfg.Phrases = DefaultPhrases
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 120 * time.Second
	}
	if cfg.Retention < 0 {
		cfg.Retention = 0
	}
	return &ChallengeService{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Issue picks a phrase uniformly at random, excluding the phrase most
// recently issued to caller, and stores the new challenge.
func (s *ChallengeService) Issue(ctx context.Context, caller string) (*domain.Challenge, error) {
	var last string
	if caller != "" {
		var err error
		if last, err = s.store.LastPhrase(ctx, caller); err != nil {
			s.logger.Warn().Err(err).Str("caller", caller).Msg("last phrase lookup failed, issuing without exclusion")
		}
	}

	phrase, err := s.pick(last)
	if err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}

	now := s.now().UTC()
	ch := &domain.Challenge{
		ID:        uuid.NewString(),
		Phrase:    phrase,
		Caller:    caller,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.store.Save(ctx, ch, s.cfg.TTL+s.cfg.Retention); err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}

	s.logger.Debug().Str("challenge_id", ch.ID).Str("caller", caller).Time("expires_at", ch.ExpiresAt).Msg("challenge issued")
	return ch, nil
}

func (s *ChallengeService) pick(exclude string) (string, error) {
	candidates := s.cfg.Phrases
	if exclude != "" && len(candidates) > 1 {
		candidates = make([]string, 0, len(s.cfg.Phrases))
		for _, p := range s.cfg.Phrases {
			if !domain.PhraseEquals(p, exclude) {
				candidates = append(candidates, p)
			}
		}
		if len(candidates) == 0 {
			candidates = s.cfg.Phrases
		}
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		return "", err
	}
	return candidates[n.Int64()], nil
}

// Consume redeems the challenge. Expiry is reported before the phrase is
// compared, so an expired challenge fails the same way whatever was said.
func (s *ChallengeService) Consume(ctx context.Context, challengeID, phrase string) (bool, *domain.Challenge, error) {
	if challengeID == "" {
		return false, nil, domain.ErrChallengeNotFound
	}
	ch, err := s.store.Consume(ctx, challengeID, s.now().UTC())
	if err != nil {
		return false, nil, fmt.Errorf("consume challenge %s: %w", challengeID, err)
	}
	return domain.PhraseEquals(ch.Phrase, phrase), ch, nil
}

// Resolve returns the id of the latest challenge issued with phrase. The
// first caller with a matching challenge wins; when none has one, the latest
// challenge issued to anyone with that phrase is used.
func (s *ChallengeService) Resolve(ctx context.Context, phrase string, callers ...string) (string, error) {
	norm := domain.NormalizePhrase(phrase)
	if norm == "" {
		return "", domain.ErrChallengeNotFound
	}
	scopes := make([]string, 0, len(callers)+1)
	for _, caller := range callers {
		if caller != "" {
			scopes = append(scopes, caller)
		}
	}
	scopes = append(scopes, "")

	for _, caller := range scopes {
		id, err := s.store.LatestForPhrase(ctx, caller, norm)
		if err != nil {
			return "", fmt.Errorf("resolve challenge: %w", err)
		}
		if id != "" {
			return id, nil
		}
	}
	return "", domain.ErrChallengeNotFound
}
