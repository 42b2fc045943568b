package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

// consumeScript checks and flips the consumed flag in one step. Expiry is
// decided against the caller's clock (ARGV[1], unix ms) and is reported
// before the consumed flag.
var consumeScript = redis.NewScript(`
local h = redis.call('HMGET', KEYS[1], 'expires_at', 'consumed', 'phrase', 'caller', 'issued_at')
if not h[1] then
	return {'not_found'}
end
if tonumber(ARGV[1]) >= tonumber(h[1]) then
	return {'expired'}
end
if h[2] == '1' then
	return {'consumed'}
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return {'ok', h[3], h[4], h[5], h[1]}
`)

// ChallengeStore keeps challenges in Redis hashes.
// Key format:
//
//	challenge:<id>               hash of phrase, caller, issued_at, expires_at, consumed
//	challenge:phrase:<phrase>    id of the latest challenge with that normalized phrase
//	challenge:caller-phrase:<caller>:<phrase>
//	                             id of the latest challenge with that phrase issued to caller
//	challenge:caller:<caller>    phrase most recently issued to caller
type ChallengeStore struct {
	client *redis.Client
}

// NewChallengeStore creates a ChallengeStore wrapping the given Redis client.
func NewChallengeStore(client *redis.Client) *ChallengeStore {
	return &ChallengeStore{client: client}
}

func (s *ChallengeStore) Save(ctx context.Context, ch *domain.Challenge, retain time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := challengeKey(ch.ID)
		pipe.HSet(ctx, key,
			"phrase", ch.Phrase,
			"caller", ch.Caller,
			"issued_at", ch.IssuedAt.UnixMilli(),
			"expires_at", ch.ExpiresAt.UnixMilli(),
			"consumed", "0",
		)
		pipe.PExpire(ctx, key, retain)
		pipe.Set(ctx, phraseKey(domain.NormalizePhrase(ch.Phrase)), ch.ID, retain)
		if ch.Caller != "" {
			pipe.Set(ctx, callerKey(ch.Caller), ch.Phrase, retain)
			pipe.Set(ctx, callerPhraseKey(ch.Caller, domain.NormalizePhrase(ch.Phrase)), ch.ID, retain)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save challenge: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *ChallengeStore) Consume(ctx context.Context, id string, now time.Time) (*domain.Challenge, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{challengeKey(id)}, now.UnixMilli()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("%w: consume challenge: %v", domain.ErrStorage, err)
	}
	return parseConsumeResult(id, res)
}

func (s *ChallengeStore) LatestForPhrase(ctx context.Context, caller, phrase string) (string, error) {
	norm := domain.NormalizePhrase(phrase)
	if caller == "" {
		return s.getString(ctx, phraseKey(norm))
	}
	return s.getString(ctx, callerPhraseKey(caller, norm))
}

func (s *ChallengeStore) LastPhrase(ctx context.Context, caller string) (string, error) {
	return s.getString(ctx, callerKey(caller))
}

func (s *ChallengeStore) getString(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get %s: %v", domain.ErrStorage, key, err)
	}
	return v, nil
}

// parseConsumeResult maps the script reply onto a challenge or a lifecycle
// error.
func parseConsumeResult(id string, res []string) (*domain.Challenge, error) {
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty consume reply", domain.ErrStorage)
	}
	switch res[0] {
	case "not_found":
		return nil, domain.ErrChallengeNotFound
	case "expired":
		return nil, domain.ErrChallengeExpired
	case "consumed":
		return nil, domain.ErrChallengeConsumed
	case "ok":
	default:
		return nil, fmt.Errorf("%w: unexpected consume reply %q", domain.ErrStorage, res[0])
	}
	if len(res) != 5 {
		return nil, fmt.Errorf("%w: malformed consume reply", domain.ErrStorage)
	}
	issued, err1 := strconv.ParseInt(res[3], 10, 64)
	expires, err2 := strconv.ParseInt(res[4], 10, 64)
	if err := errors.Join(err1, err2); err != nil {
		return nil, fmt.Errorf("%w: challenge timestamps: %v", domain.ErrStorage, err)
	}
	return &domain.Challenge{
		ID:        id,
		Phrase:    res[1],
		Caller:    res[2],
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
		Consumed:  true,
	}, nil
}

func challengeKey(id string) string  { return "challenge:" + id }
func phraseKey(phrase string) string { return "challenge:phrase:" + phrase }
func callerKey(caller string) string { return "challenge:caller:" + caller }

func callerPhraseKey(caller, phrase string) string {
	return "challenge:caller-phrase:" + caller + ":" + phrase
}
