package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

const (
	defaultHistoryLimit = 20
	defaultHistoryTTL   = 30 * 24 * time.Hour
)

// SampleHistory keeps the newest msgpack-encoded sample traces per user in a
// capped list.
// Key format: replay:<user_id>
type SampleHistory struct {
	client *redis.Client
	limit  int
	ttl    time.Duration
}

// NewSampleHistory creates a SampleHistory. Non-positive limit or ttl use the
// defaults (20 traces, 30 days).
func NewSampleHistory(client *redis.Client, limit int, ttl time.Duration) *SampleHistory {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	return &SampleHistory{client: client, limit: limit, ttl: ttl}
}

func (h *SampleHistory) Recent(ctx context.Context, userID string) ([]domain.SampleTrace, error) {
	raw, err := h.client.LRange(ctx, historyKey(userID), 0, int64(h.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read replay history: %v", domain.ErrStorage, err)
	}
	cutoff := time.Now().Add(-h.ttl)
	out := make([]domain.SampleTrace, 0, len(raw))
	for _, item := range raw {
		var tr domain.SampleTrace
		if err := msgpack.Unmarshal([]byte(item), &tr); err != nil {
			continue
		}
		if tr.SeenAt.Before(cutoff) {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func (h *SampleHistory) Remember(ctx context.Context, userID string, trace domain.SampleTrace) error {
	b, err := msgpack.Marshal(&trace)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	key := historyKey(userID)
	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, int64(h.limit-1))
		pipe.Expire(ctx, key, h.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: write replay history: %v", domain.ErrStorage, err)
	}
	return nil
}

func historyKey(userID string) string {
	return "replay:" + userID
}
