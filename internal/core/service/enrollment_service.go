package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
)

const defaultWriteTimeout = 10 * time.Second

type EnrollmentService struct {
	repo         ports.EnrollmentRepository
	extractor    ports.FeatureExtractor
	runner       ports.Runner
	writeTimeout time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

func NewEnrollmentService(
	repo ports.EnrollmentRepository,
	extractor ports.FeatureExtractor,
	runner ports.Runner,
	writeTimeout time.Duration,
	logger zerolog.Logger,
) *EnrollmentService {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &EnrollmentService{
		repo:         repo,
		extractor:    extractor,
		runner:       runner,
		writeTimeout: writeTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Enroll extracts a reference embedding from the sample and stores it as the
// user's newest record. Extraction and the write run as one job on the
// user's worker, so enrollments for the same user never interleave. The
// write is detached from ctx: once started it completes even if the client
// goes away.
func (s *EnrollmentService) Enroll(ctx context.Context, sample domain.AudioSample) (*domain.EnrollmentRecord, error) {
	if err := domain.ValidateUserID(sample.UserID); err != nil {
		return nil, err
	}
	if len(sample.Data) == 0 {
		return nil, fmt.Errorf("%w: audio is empty", domain.ErrValidation)
	}

	var (
		rec      *domain.EnrollmentRecord
		identity *domain.UserIdentity
	)
	err := s.runner.Submit(ctx, sample.UserID, func(ctx context.Context) error {
		f, err := s.extractor.Extract(ctx, sample.Data)
		if err != nil {
			return err
		}
		rec = &domain.EnrollmentRecord{
			ID:           uuid.NewString(),
			UserID:       sample.UserID,
			Embedding:    f.Embedding,
			ModelVersion: s.extractor.ModelVersion(),
			Checksum:     f.Checksum,
			Fingerprint:  f.Fingerprint,
			CreatedAt:    s.now().UTC(),
		}

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()
		identity, err = s.repo.SaveEnrollment(writeCtx, rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("enroll %s: %w", sample.UserID, err)
	}

	s.logger.Info().
		Str("user_id", rec.UserID).
		Str("enrollment_id", rec.ID).
		Int("enrollment_count", identity.EnrollmentCount).
		Str("model_version", rec.ModelVersion).
		Msg("voice enrolled")
	return rec, nil
}

// GetReference returns the user's authoritative (latest) enrollment.
func (s *EnrollmentService) GetReference(ctx context.Context, userID string) (*domain.EnrollmentRecord, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	rec, err := s.repo.LatestEnrollment(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reference for %s: %w", userID, err)
	}
	return rec, nil
}

// Profile returns the identity with its newest enrollments.
func (s *EnrollmentService) Profile(ctx context.Context, userID string, limit int) (*ports.UserProfile, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	identity, err := s.repo.GetIdentity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("profile for %s: %w", userID, err)
	}
	records, err := s.repo.ListEnrollments(ctx, userID, limit)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("profile for %s: %w", userID, err)
	}
	return &ports.UserProfile{Identity: identity, Enrollments: records}, nil
}

// checkModelVersion guards scoring against embeddings of another layout.
func checkModelVersion(ref *domain.EnrollmentRecord, current string) error {
	if ref.ModelVersion != current || len(ref.Embedding) != audio.EmbeddingDim {
		return fmt.Errorf("%w: enrolled with %q (%d dims), extractor is %q",
			domain.ErrModelVersionMismatch, ref.ModelVersion, len(ref.Embedding), current)
	}
	return nil
}
