// Package memory provides process-local stores for tests and single-node
// development.
package memory

import (
	"context"
	"sync"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

// EnrollmentRepository keeps identities and records in maps guarded by a
// mutex. Stored values are copied on the way in and out.
type EnrollmentRepository struct {
	mu         sync.RWMutex
	identities map[string]*domain.UserIdentity
	records    map[string][]*domain.EnrollmentRecord // oldest first
}

func NewEnrollmentRepository() *EnrollmentRepository {
	return &EnrollmentRepository{
		identities: make(map[string]*domain.UserIdentity),
		records:    make(map[string][]*domain.EnrollmentRecord),
	}
}

func (r *EnrollmentRepository) SaveEnrollment(ctx context.Context, rec *domain.EnrollmentRecord) (*domain.UserIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.identities[rec.UserID]
	if !ok {
		id = &domain.UserIdentity{UserID: rec.UserID, CreatedAt: rec.CreatedAt}
		r.identities[rec.UserID] = id
	}
	id.EnrollmentCount++
	id.LastEnrolledAt = rec.CreatedAt
	r.records[rec.UserID] = append(r.records[rec.UserID], cloneRecord(rec))

	out := *id
	return &out, nil
}

func (r *EnrollmentRepository) LatestEnrollment(_ context.Context, userID string) (*domain.EnrollmentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.records[userID]
	if len(recs) == 0 {
		return nil, domain.ErrNotFound
	}
	return cloneRecord(recs[len(recs)-1]), nil
}

func (r *EnrollmentRepository) ListEnrollments(_ context.Context, userID string, limit int) ([]*domain.EnrollmentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.records[userID]
	out := make([]*domain.EnrollmentRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, cloneRecord(recs[i]))
	}
	return out, nil
}

func (r *EnrollmentRepository) GetIdentity(_ context.Context, userID string) (*domain.UserIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.identities[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *id
	return &out, nil
}

func (r *EnrollmentRepository) Ping(context.Context) error { return nil }

func cloneRecord(rec *domain.EnrollmentRecord) *domain.EnrollmentRecord {
	out := *rec
	out.Embedding = append([]float32(nil), rec.Embedding...)
	out.Fingerprint = append([]uint32(nil), rec.Fingerprint...)
	return &out
}
