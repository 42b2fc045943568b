package ports

import (
	"context"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

// EnrollmentRepository persists identities and their enrollment records.
// Implementations must never expose a partially written record.
type EnrollmentRepository interface {
	// SaveEnrollment creates the identity on first use, bumps its counters and
	// appends rec. It returns the identity as stored after the write.
	SaveEnrollment(ctx context.Context, rec *domain.EnrollmentRecord) (*domain.UserIdentity, error)
	// LatestEnrollment returns the most recent record or domain.ErrNotFound.
	LatestEnrollment(ctx context.Context, userID string) (*domain.EnrollmentRecord, error)
	// ListEnrollments returns up to limit records, newest first.
	ListEnrollments(ctx context.Context, userID string, limit int) ([]*domain.EnrollmentRecord, error)
	GetIdentity(ctx context.Context, userID string) (*domain.UserIdentity, error)
	Ping(ctx context.Context) error
}
