package service

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
	"github.com/truevoice/voice-verification/internal/infrastructure/db/memory"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
)

// voiceWAV renders a harmonic tone with vibrato between quiet noise, as a
// 16 kHz WAV file.
func voiceWAV(t *testing.T, f0 float64, seed uint64) []byte {
	t.Helper()
	const rate = audio.TargetSampleRate
	rng := rand.New(rand.NewPCG(seed, seed*7+1))
	pad, body := rate/4, rate*3/2
	samples := make([]float32, pad+body+pad)
	phase := 0.0
	for i := 0; i < body; i++ {
		tm := float64(i) / rate
		phase += 2 * math.Pi * (f0 + 4*math.Sin(2*math.Pi*5*tm)) / rate
		s := math.Sin(phase) + 0.5*math.Sin(2*phase) + 0.3*math.Sin(3*phase) + 0.2*math.Sin(4*phase)
		samples[pad+i] = float32(0.2 * s)
	}
	for i := range samples {
		samples[i] += float32(0.001 * rng.NormFloat64())
	}
	data, err := audio.EncodeWAVBytes(samples, rate)
	if err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return data
}

func TestEnrollmentService_RoundTripSelfSimilarity(t *testing.T) {
	repo := memory.NewEnrollmentRepository()
	extractor := NewExtractor(audio.DefaultQualityGate)
	enroll := NewEnrollmentService(repo, extractor, directRunner{}, time.Second, zerolog.Nop())
	liveness := NewLivenessService(repo, memory.NewSampleHistory(10, time.Hour), LivenessConfig{}, zerolog.Nop())
	challenges := newChallengeSvc(nil, &fakeClock{now: time.Now()})
	verify := NewVerificationService(enroll, challenges, extractor, nil, liveness, directRunner{}, VerificationConfig{}, zerolog.Nop())

	sample := voiceWAV(t, 140, 1)
	ctx := context.Background()

	rec, err := enroll.Enroll(ctx, domain.AudioSample{UserID: "alice", Data: sample})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if rec.ModelVersion != audio.EmbeddingVersion || len(rec.Embedding) != audio.EmbeddingDim {
		t.Fatalf("unexpected record: version %q dims %d", rec.ModelVersion, len(rec.Embedding))
	}
	if rec.Checksum != audio.Checksum(sample) {
		t.Fatalf("checksum not recorded")
	}

	ref, err := enroll.GetReference(ctx, "alice")
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	again, _ := extractor.Extract(ctx, sample)
	for i := range ref.Embedding {
		if ref.Embedding[i] != again.Embedding[i] {
			t.Fatalf("reference embedding is not deterministic at %d", i)
		}
	}

	v, err := verify.Verify(ctx, ports.VerifyInput{UserID: "alice", Audio: sample})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.SimilarityScore < 0.999 || !v.IdentityVerified {
		t.Fatalf("expected self-similarity near 1, got %+v", v)
	}
	if v.LivenessVerified {
		t.Fatalf("the enrollment recording itself is a replay, liveness must fail")
	}
}

func TestEnrollmentService_ReEnrollSupersedes(t *testing.T) {
	repo := memory.NewEnrollmentRepository()
	ext := newStubExtractor()
	ext.withSimilarity("first", 1)
	ext.withSimilarity("second", 0.5)
	svc := NewEnrollmentService(repo, ext, directRunner{}, time.Second, zerolog.Nop())
	ctx := context.Background()

	first, _ := svc.Enroll(ctx, domain.AudioSample{UserID: "bob", Data: []byte("first")})
	second, err := svc.Enroll(ctx, domain.AudioSample{UserID: "bob", Data: []byte("second")})
	if err != nil {
		t.Fatalf("re-enroll: %v", err)
	}

	ref, _ := svc.GetReference(ctx, "bob")
	if ref.ID != second.ID || ref.ID == first.ID {
		t.Fatalf("expected newest record to be the reference")
	}

	profile, err := svc.Profile(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Identity.EnrollmentCount != 2 || len(profile.Enrollments) != 2 {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestEnrollmentService_Errors(t *testing.T) {
	repo := memory.NewEnrollmentRepository()
	ext := newStubExtractor()
	ext.errs["hiss"] = domain.ErrUnintelligibleAudio
	svc := NewEnrollmentService(repo, ext, directRunner{}, time.Second, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Enroll(ctx, domain.AudioSample{UserID: "bad id!", Data: []byte("x")}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad user id, got %v", err)
	}
	if _, err := svc.Enroll(ctx, domain.AudioSample{UserID: "carol"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty audio, got %v", err)
	}
	if _, err := svc.Enroll(ctx, domain.AudioSample{UserID: "carol", Data: []byte("hiss")}); !errors.Is(err, domain.ErrUnintelligibleAudio) {
		t.Fatalf("expected ErrUnintelligibleAudio, got %v", err)
	}
	if _, err := svc.GetReference(ctx, "carol"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("failed enrollment must not create a reference, got %v", err)
	}
	if _, err := svc.Profile(ctx, "carol", 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound profile, got %v", err)
	}
}

// failingRepo fails every write.
type failingRepo struct {
	*memory.EnrollmentRepository
	sawCancelled bool
}

func (r *failingRepo) SaveEnrollment(ctx context.Context, _ *domain.EnrollmentRecord) (*domain.UserIdentity, error) {
	r.sawCancelled = ctx.Err() != nil
	return nil, domain.ErrStorage
}

func TestEnrollmentService_WriteDetachedFromCaller(t *testing.T) {
	repo := &failingRepo{EnrollmentRepository: memory.NewEnrollmentRepository()}
	ext := newStubExtractor()
	ext.withSimilarity("voice", 1)
	svc := NewEnrollmentService(repo, ext, cancelThenRun{}, time.Second, zerolog.Nop())

	_, err := svc.Enroll(context.Background(), domain.AudioSample{UserID: "dave", Data: []byte("voice")})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if repo.sawCancelled {
		t.Fatalf("the write must not see the caller's cancellation")
	}
}

// cancelThenRun hands the job an already-cancelled context, as if the
// client went away right after the job started.
type cancelThenRun struct{}

func (cancelThenRun) Submit(ctx context.Context, _ string, job func(ctx context.Context) error) error {
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	return job(cctx)
}
