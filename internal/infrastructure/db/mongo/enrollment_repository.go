package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

const (
	collectionIdentities  = "identities"
	collectionEnrollments = "enrollments"
)

// newestFirst orders a user's records by seq. created_at alone has
// millisecond precision and can tie; it only orders records stored before seq
// existed.
var newestFirst = bson.D{{Key: "seq", Value: -1}, {Key: "created_at", Value: -1}}

// enrollmentDoc is the stored form of a record. Seq is the identity's
// enrollment_count right after the record's upsert, unique per user.
type enrollmentDoc struct {
	domain.EnrollmentRecord `bson:",inline"`
	Seq                     int `bson:"seq"`
}

func newEnrollmentDoc(rec *domain.EnrollmentRecord, identity *domain.UserIdentity) *enrollmentDoc {
	return &enrollmentDoc{EnrollmentRecord: *rec, Seq: identity.EnrollmentCount}
}

// EnrollmentRepository stores identities and immutable enrollment records in
// two collections. Each record is a single document, so readers never see a
// partial record; the identity is upserted before the record is inserted.
type EnrollmentRepository struct {
	identities  *mongo.Collection
	enrollments *mongo.Collection
}

func NewEnrollmentRepository(db *mongo.Database) *EnrollmentRepository {
	return &EnrollmentRepository{
		identities:  db.Collection(collectionIdentities),
		enrollments: db.Collection(collectionEnrollments),
	}
}

// SaveEnrollment upserts the identity and inserts rec.
func (r *EnrollmentRepository) SaveEnrollment(ctx context.Context, rec *domain.EnrollmentRecord) (*domain.UserIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": rec.UserID}
	update := bson.M{
		"$setOnInsert": bson.M{"created_at": rec.CreatedAt},
		"$set":         bson.M{"last_enrolled_at": rec.CreatedAt},
		"$inc":         bson.M{"enrollment_count": 1},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var identity domain.UserIdentity
	if err := r.identities.FindOneAndUpdate(ctx, filter, update, opts).Decode(&identity); err != nil {
		return nil, fmt.Errorf("%w: upsert identity: %v", domain.ErrStorage, err)
	}

	if _, err := r.enrollments.InsertOne(ctx, newEnrollmentDoc(rec, &identity)); err != nil {
		// Best effort: keep the counter in step with the stored records.
		_, _ = r.identities.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"enrollment_count": -1}})
		return nil, fmt.Errorf("%w: insert enrollment: %v", domain.ErrStorage, err)
	}
	return &identity, nil
}

// LatestEnrollment returns the newest record for userID.
func (r *EnrollmentRepository) LatestEnrollment(ctx context.Context, userID string) (*domain.EnrollmentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(newestFirst)
	var doc enrollmentDoc
	err := r.enrollments.FindOne(ctx, bson.M{"user_id": userID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find enrollment: %v", domain.ErrStorage, err)
	}
	return &doc.EnrollmentRecord, nil
}

// ListEnrollments returns up to limit records, newest first.
func (r *EnrollmentRepository) ListEnrollments(ctx context.Context, userID string, limit int) ([]*domain.EnrollmentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.enrollments.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list enrollments: %v", domain.ErrStorage, err)
	}
	defer cur.Close(ctx)

	var docs []enrollmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode enrollments: %v", domain.ErrStorage, err)
	}
	records := make([]*domain.EnrollmentRecord, len(docs))
	for i := range docs {
		records[i] = &docs[i].EnrollmentRecord
	}
	return records, nil
}

// GetIdentity returns the identity for userID.
func (r *EnrollmentRepository) GetIdentity(ctx context.Context, userID string) (*domain.UserIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var identity domain.UserIdentity
	if err := r.identities.FindOne(ctx, bson.M{"_id": userID}).Decode(&identity); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find identity: %v", domain.ErrStorage, err)
	}
	return &identity, nil
}

// Ping checks connectivity for readiness probes.
func (r *EnrollmentRepository) Ping(ctx context.Context) error {
	return Ping(ctx, r.enrollments.Database())
}

// EnsureIndexes creates the index serving latest-record lookups and
// listings.
func (r *EnrollmentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: append(bson.D{{Key: "user_id", Value: 1}}, newestFirst...)},
	}

	_, err := r.enrollments.Indexes().CreateMany(ctx, indexes)
	return err
}
