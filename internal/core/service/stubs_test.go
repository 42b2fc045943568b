package service

import (
	"context"
	"math"
	"sync"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
)

// directRunner runs jobs inline on the caller's goroutine.
type directRunner struct{}

func (directRunner) Submit(ctx context.Context, _ string, job func(ctx context.Context) error) error {
	return job(ctx)
}

// stubExtractor returns canned features keyed by the raw audio bytes.
type stubExtractor struct {
	features map[string]*audio.Features
	errs     map[string]error
	version  string
	calls    int
}

func newStubExtractor() *stubExtractor {
	return &stubExtractor{
		features: make(map[string]*audio.Features),
		errs:     make(map[string]error),
		version:  audio.EmbeddingVersion,
	}
}

func (e *stubExtractor) Extract(_ context.Context, data []byte) (*audio.Features, error) {
	e.calls++
	if err, ok := e.errs[string(data)]; ok {
		return nil, err
	}
	f, ok := e.features[string(data)]
	if !ok {
		return nil, domain.ErrUnintelligibleAudio
	}
	return f, nil
}

func (e *stubExtractor) ModelVersion() string { return e.version }

// withSimilarity registers audio whose embedding has the given cosine
// similarity to basis(0).
func (e *stubExtractor) withSimilarity(key string, sim float64) {
	v := make([]float32, audio.EmbeddingDim)
	v[0] = float32(sim)
	v[1] = float32(math.Sqrt(1 - sim*sim))
	e.features[key] = &audio.Features{Embedding: v, Checksum: "sum-" + key}
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return s.text, s.err
}

type stubLiveness struct {
	mu         sync.Mutex
	result     domain.LivenessAssessment
	err        error
	assessed   int
	remembered []string
}

func (l *stubLiveness) Assess(context.Context, string, *audio.Features) (domain.LivenessAssessment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assessed++
	return l.result, l.err
}

func (l *stubLiveness) Remember(_ context.Context, userID string, f *audio.Features) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remembered = append(l.remembered, userID+":"+f.Checksum)
	return nil
}
