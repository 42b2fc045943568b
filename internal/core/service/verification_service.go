package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
	"github.com/truevoice/voice-verification/internal/pkg/textmatch"
)

// LivenessMode controls liveness on plain (non-challenge) verification.
type LivenessMode string

const (
	LivenessOff     LivenessMode = "off"
	LivenessReport  LivenessMode = "report"
	LivenessEnforce LivenessMode = "enforce"
)

// ParseLivenessMode accepts off, report or enforce.
func ParseLivenessMode(s string) (LivenessMode, error) {
	switch m := LivenessMode(strings.ToLower(strings.TrimSpace(s))); m {
	case LivenessOff, LivenessReport, LivenessEnforce:
		return m, nil
	}
	return "", fmt.Errorf("unknown liveness mode %q", s)
}

// VerificationConfig holds the decision thresholds.
type VerificationConfig struct {
	SpeakerThreshold float64
	PhraseThreshold  float64
	PlainLiveness    LivenessMode
}

type VerificationService struct {
	enrollments ports.EnrollmentService
	challenges  ports.ChallengeService
	extractor   ports.FeatureExtractor
	transcriber ports.Transcriber
	liveness    ports.LivenessDetector
	runner      ports.Runner
	cfg         VerificationConfig
	logger      zerolog.Logger
}

// NewVerificationService wires the engine. transcriber may be nil, in which
// case secure verification fails with domain.ErrTranscriberUnavailable.
func NewVerificationService(
	enrollments ports.EnrollmentService,
	challenges ports.ChallengeService,
	extractor ports.FeatureExtractor,
	transcriber ports.Transcriber,
	liveness ports.LivenessDetector,
	runner ports.Runner,
	cfg VerificationConfig,
	logger zerolog.Logger,
) *VerificationService {
	if cfg.SpeakerThreshold <= 0 {
		cfg.SpeakerThreshold = 0.75
	}
	if cfg.PhraseThreshold <= 0 {
		cfg.PhraseThreshold = 0.8
	}
	if cfg.PlainLiveness == "" {
		cfg.PlainLiveness = LivenessReport
	}
	return &VerificationService{
		enrollments: enrollments,
		challenges:  challenges,
		extractor:   extractor,
		transcriber: transcriber,
		liveness:    liveness,
		runner:      runner,
		cfg:         cfg,
		logger:      logger,
	}
}

// run tracks one request through the state machine.
type run struct {
	flow    string
	userID  string
	path    []domain.VerificationState
	verdict domain.VerificationVerdict
	started time.Time
}

func newRun(flow, userID string) *run {
	return &run{
		flow:    flow,
		userID:  userID,
		path:    []domain.VerificationState{domain.StateReceived},
		started: time.Now(),
	}
}

func (r *run) advance(s domain.VerificationState) {
	r.path = append(r.path, s)
}

// reject ends the run in REJECTED. Gates not yet evaluated keep their zero
// value and the failing gate is false.
func (r *run) reject(err error) *domain.VerificationVerdict {
	r.advance(domain.StateRejected)
	r.verdict.IdentityVerified = false
	r.verdict.LivenessVerified = false
	r.verdict.Reason = domain.RejectReasonFor(err)
	r.verdict.State = domain.StateRejected
	v := r.verdict
	return &v
}

func (r *run) decide() *domain.VerificationVerdict {
	r.advance(domain.StateDecided)
	r.verdict.State = domain.StateDecided
	v := r.verdict
	return &v
}

func (s *VerificationService) log(r *run, err error) {
	path := make([]string, len(r.path))
	for i, st := range r.path {
		path[i] = string(st)
	}
	ev := s.logger.Debug()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("flow", r.flow).
		Str("user_id", r.userID).
		Strs("state_path", path).
		Str("reason", string(r.verdict.Reason)).
		Bool("identity_verified", r.verdict.IdentityVerified).
		Bool("liveness_verified", r.verdict.LivenessVerified).
		Float64("similarity", r.verdict.SimilarityScore).
		Dur("elapsed", time.Since(r.started)).
		Msg("verification finished")
}

// Verify runs plain verification: no challenge, no transcript.
func (s *VerificationService) Verify(ctx context.Context, in ports.VerifyInput) (verdict *domain.VerificationVerdict, err error) {
	r := newRun("plain", in.UserID)
	defer func() { s.log(r, err) }()

	threshold := s.cfg.SpeakerThreshold
	if in.Threshold != nil {
		if *in.Threshold < 0 || *in.Threshold > 1 {
			return nil, fmt.Errorf("%w: threshold must be within [0, 1]", domain.ErrValidation)
		}
		threshold = *in.Threshold
	}
	ref, err := s.reference(ctx, in.UserID, in.Audio)
	if err != nil {
		return nil, err
	}

	f, err := s.extract(ctx, in.UserID, in.Audio)
	if err != nil {
		if domain.IsRejection(err) {
			return r.reject(err), nil
		}
		return nil, err
	}
	r.advance(domain.StateFeaturesExtracted)

	sim := audio.Similarity(f.Embedding, ref.Embedding)
	r.verdict.SimilarityScore = sim
	r.verdict.SpeakerScore = sim

	live := false
	if s.cfg.PlainLiveness != LivenessOff {
		res, err := s.liveness.Assess(ctx, in.UserID, f)
		if err != nil {
			return nil, err
		}
		live = res.Live
		r.verdict.LivenessScore = res.Score
		s.remember(ctx, in.UserID, f)
	}
	r.advance(domain.StateScored)

	r.verdict.IdentityVerified = sim >= threshold
	if s.cfg.PlainLiveness == LivenessEnforce {
		r.verdict.IdentityVerified = r.verdict.IdentityVerified && live
	}
	r.verdict.LivenessVerified = live
	return r.decide(), nil
}

// SecureVerify runs challenge-based verification. Challenge and audio
// quality failures end in a REJECTED verdict; operational faults are
// returned as errors.
func (s *VerificationService) SecureVerify(ctx context.Context, in ports.SecureVerifyInput) (verdict *domain.VerificationVerdict, err error) {
	r := newRun("secure", in.UserID)
	r.verdict.ChallengePhrase = in.ChallengePhrase
	defer func() { s.log(r, err) }()

	if strings.TrimSpace(in.ChallengePhrase) == "" {
		return nil, fmt.Errorf("%w: challenge_phrase is required", domain.ErrValidation)
	}
	if s.transcriber == nil {
		return nil, domain.ErrTranscriberUnavailable
	}
	ref, err := s.reference(ctx, in.UserID, in.Audio)
	if err != nil {
		return nil, err
	}

	// RECEIVED -> CHALLENGE_VALIDATED
	challengeID := in.ChallengeID
	if challengeID == "" {
		if challengeID, err = s.challenges.Resolve(ctx, in.ChallengePhrase, in.Callers...); err != nil {
			return s.rejectOrFail(r, err)
		}
	}
	matches, ch, err := s.challenges.Consume(ctx, challengeID, in.ChallengePhrase)
	if err != nil {
		return s.rejectOrFail(r, err)
	}
	r.verdict.ChallengePhrase = ch.Phrase
	if !matches {
		return r.reject(domain.ErrChallengePhraseMismatch), nil
	}
	r.advance(domain.StateChallengeValidated)

	// -> FEATURES_EXTRACTED
	f, err := s.extract(ctx, in.UserID, in.Audio)
	if err != nil {
		return s.rejectOrFail(r, err)
	}
	transcript, err := s.transcriber.Transcribe(ctx, in.Audio)
	if err != nil {
		return s.rejectOrFail(r, err)
	}
	r.verdict.Transcript = transcript
	r.advance(domain.StateFeaturesExtracted)

	// -> SCORED
	sim := audio.Similarity(f.Embedding, ref.Embedding)
	phraseScore := textmatch.Score(transcript, ch.Phrase)
	res, err := s.liveness.Assess(ctx, in.UserID, f)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, in.UserID, f)
	r.verdict.SimilarityScore = sim
	r.verdict.SpeakerScore = sim * phraseScore
	r.verdict.LivenessScore = res.Score
	r.advance(domain.StateScored)

	// -> DECIDED
	r.verdict.IdentityVerified = sim >= s.cfg.SpeakerThreshold && phraseScore >= s.cfg.PhraseThreshold
	r.verdict.LivenessVerified = res.Live
	return r.decide(), nil
}

func (s *VerificationService) rejectOrFail(r *run, err error) (*domain.VerificationVerdict, error) {
	if domain.IsRejection(err) {
		return r.reject(err), nil
	}
	return nil, err
}

// reference loads the enrollment and checks it is comparable with the
// current extractor before any challenge is spent.
func (s *VerificationService) reference(ctx context.Context, userID string, data []byte) (*domain.EnrollmentRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: audio is empty", domain.ErrValidation)
	}
	ref, err := s.enrollments.GetReference(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkModelVersion(ref, s.extractor.ModelVersion()); err != nil {
		return nil, err
	}
	return ref, nil
}

// extract runs feature extraction on the user's worker. f is only read when
// Submit reports the job finished; on cancellation the job may still be
// writing it.
func (s *VerificationService) extract(ctx context.Context, userID string, data []byte) (*audio.Features, error) {
	var f *audio.Features
	err := s.runner.Submit(ctx, userID, func(ctx context.Context) error {
		var err error
		f, err = s.extractor.Extract(ctx, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// remember stores the sample trace. Failures only weaken future replay
// detection, so they are logged and not returned.
func (s *VerificationService) remember(ctx context.Context, userID string, f *audio.Features) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultWriteTimeout)
	defer cancel()
	if err := s.liveness.Remember(ctx, userID, f); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("replay history not updated")
	}
}
