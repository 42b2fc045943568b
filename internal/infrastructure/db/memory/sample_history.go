package memory

import (
	"context"
	"sync"
	"time"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

// SampleHistory keeps the newest traces per user, bounded by count and age.
type SampleHistory struct {
	mu     sync.Mutex
	limit  int
	ttl    time.Duration
	traces map[string][]domain.SampleTrace // newest first
	now    func() time.Time
}

func NewSampleHistory(limit int, ttl time.Duration) *SampleHistory {
	if limit <= 0 {
		limit = 20
	}
	return &SampleHistory{
		limit:  limit,
		ttl:    ttl,
		traces: make(map[string][]domain.SampleTrace),
		now:    time.Now,
	}
}

func (h *SampleHistory) Recent(_ context.Context, userID string) ([]domain.SampleTrace, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []domain.SampleTrace
	for _, tr := range h.traces[userID] {
		if h.ttl > 0 && h.now().Sub(tr.SeenAt) > h.ttl {
			break
		}
		out = append(out, tr)
	}
	return out, nil
}

func (h *SampleHistory) Remember(_ context.Context, userID string, trace domain.SampleTrace) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append([]domain.SampleTrace{trace}, h.traces[userID]...)
	if len(list) > h.limit {
		list = list[:h.limit]
	}
	h.traces[userID] = list
	return nil
}
