package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
)

// Heuristic calibration. Flatness falls from 1 to 0 between flatFull and
// flatZero; jitter rises from 0 to 1 between jitterZero and jitterFull.
// Replays below the BER threshold score 0; the factor ramps back to 1 by
// replayClear.
const (
	flatFull       = 0.30
	flatZero       = 0.45
	jitterZero     = 0.002
	jitterFull     = 0.006
	replayRampFrom = 0.10
	replayClear    = 0.35
	minPitched     = 10
	enrollWindow   = 5
)

// LivenessConfig configures the detector.
type LivenessConfig struct {
	Threshold float64
	ReplayBER float64
}

type LivenessService struct {
	repo    ports.EnrollmentRepository
	history ports.SampleHistory
	cfg     LivenessConfig
	logger  zerolog.Logger
	now     func() time.Time
}

func NewLivenessService(repo ports.EnrollmentRepository, history ports.SampleHistory, cfg LivenessConfig, logger zerolog.Logger) *LivenessService {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.6
	}
	if cfg.ReplayBER <= 0 {
		cfg.ReplayBER = 0.20
	}
	return &LivenessService{repo: repo, history: history, cfg: cfg, logger: logger, now: time.Now}
}

// Assess scores a sample. A replay of any of the user's recent enrollment
// or verification samples scores 0; otherwise the score combines spectral
// flatness and pitch jitter.
func (s *LivenessService) Assess(ctx context.Context, userID string, f *audio.Features) (domain.LivenessAssessment, error) {
	traces, err := s.traces(ctx, userID)
	if err != nil {
		return domain.LivenessAssessment{}, err
	}

	replay := false
	ber := 1.0
	for _, tr := range traces {
		if tr.Checksum != "" && tr.Checksum == f.Checksum {
			replay = true
			ber = 0
			break
		}
		if b := audio.BitErrorRate(f.Fingerprint, tr.Fingerprint); b < ber {
			ber = b
		}
	}
	if ber < s.cfg.ReplayBER {
		replay = true
	}

	replayFactor := 0.0
	if !replay {
		replayFactor = ramp(ber, replayRampFrom, replayClear)
	}
	flat := 1 - ramp(f.Flatness, flatFull, flatZero)
	jitter := 0.5
	if f.PitchedFrames >= minPitched {
		jitter = ramp(f.Jitter, jitterZero, jitterFull)
	}
	score := replayFactor * (0.5*flat + 0.5*jitter)

	res := domain.LivenessAssessment{
		Live:         score >= s.cfg.Threshold,
		Score:        score,
		Replay:       replay,
		BitErrorRate: ber,
		Flatness:     f.Flatness,
		Jitter:       f.Jitter,
	}
	s.logger.Debug().
		Str("user_id", userID).
		Bool("replay", replay).
		Float64("ber", ber).
		Float64("flatness", f.Flatness).
		Float64("jitter", f.Jitter).
		Float64("score", score).
		Msg("liveness assessed")
	return res, nil
}

// Remember records a verification sample in the replay history.
func (s *LivenessService) Remember(ctx context.Context, userID string, f *audio.Features) error {
	err := s.history.Remember(ctx, userID, domain.SampleTrace{
		Checksum:    f.Checksum,
		Fingerprint: f.Fingerprint,
		SeenAt:      s.now().UTC(),
		Source:      domain.SourceVerify,
	})
	if err != nil {
		return fmt.Errorf("remember sample: %w", err)
	}
	return nil
}

func (s *LivenessService) traces(ctx context.Context, userID string) ([]domain.SampleTrace, error) {
	records, err := s.repo.ListEnrollments(ctx, userID, enrollWindow)
	if err != nil {
		return nil, fmt.Errorf("liveness history: %w", err)
	}
	recent, err := s.history.Recent(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("liveness history: %w", err)
	}
	out := make([]domain.SampleTrace, 0, len(records)+len(recent))
	for _, r := range records {
		out = append(out, r.Trace())
	}
	return append(out, recent...), nil
}

// ramp maps v linearly from [lo, hi] onto [0, 1], clamped.
func ramp(v, lo, hi float64) float64 {
	switch {
	case v <= lo:
		return 0
	case v >= hi:
		return 1
	}
	return (v - lo) / (hi - lo)
}
