package domain

import (
	"fmt"
	"regexp"
	"time"
)

// UserIdentity is created on the first successful enrollment and is never
// implicitly deleted.
type UserIdentity struct {
	UserID          string    `json:"user_id" bson:"_id" msgpack:"user_id"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at" msgpack:"created_at"`
	LastEnrolledAt  time.Time `json:"last_enrolled_at" bson:"last_enrolled_at" msgpack:"last_enrolled_at"`
	EnrollmentCount int       `json:"enrollment_count" bson:"enrollment_count" msgpack:"enrollment_count"`
}

// EnrollmentRecord is an immutable voice reference. The most recent record of
// a user is the authoritative reference for scoring.
type EnrollmentRecord struct {
	ID           string    `json:"id" bson:"_id" msgpack:"id"`
	UserID       string    `json:"user_id" bson:"user_id" msgpack:"user_id"`
	Embedding    []float32 `json:"-" bson:"embedding" msgpack:"embedding"`
	ModelVersion string    `json:"model_version" bson:"model_version" msgpack:"model_version"`
	Checksum     string    `json:"checksum" bson:"checksum" msgpack:"checksum"`
	Fingerprint  []uint32  `json:"-" bson:"fingerprint" msgpack:"fingerprint"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" msgpack:"created_at"`
}

// Trace returns the replay-history view of the record's source audio.
func (r *EnrollmentRecord) Trace() SampleTrace {
	return SampleTrace{
		Checksum:    r.Checksum,
		Fingerprint: r.Fingerprint,
		SeenAt:      r.CreatedAt,
		Source:      SourceEnroll,
	}
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]{0,127}$`)

// ValidateUserID checks that id is usable as a storage key.
func ValidateUserID(id string) error {
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("%w: user_id must be 1-128 characters of [A-Za-z0-9._@-]", ErrValidation)
	}
	return nil
}
