// Package badger stores identities and enrollment records in an embedded
// BadgerDB for single-node deployments.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

// Options configures Open.
type Options struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir      string
	InMemory bool
	Logger   zerolog.Logger
}

// EnrollmentRepository keeps msgpack-encoded values under the keys
//
//	identity:<user_id>
//	enrollment:<user_id>:<created_at unix nanos, zero padded>
//
// The identity and the new record are written in one transaction.
type EnrollmentRepository struct {
	db *badgerdb.DB
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*EnrollmentRepository, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: Dir is required for on-disk mode")
	}
	dbOpts := badgerdb.DefaultOptions(opts.Dir).WithLogger(badgerLogger{log: opts.Logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &EnrollmentRepository{db: db}, nil
}

func (r *EnrollmentRepository) Close() error {
	return r.db.Close()
}

func (r *EnrollmentRepository) SaveEnrollment(ctx context.Context, rec *domain.EnrollmentRecord) (*domain.UserIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recBytes, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode enrollment: %w", err)
	}

	var identity domain.UserIdentity
	err = r.db.Update(func(txn *badgerdb.Txn) error {
		found, err := getValue(txn, identityKey(rec.UserID), &identity)
		if err != nil {
			return err
		}
		if !found {
			identity = domain.UserIdentity{UserID: rec.UserID, CreatedAt: rec.CreatedAt}
		}
		identity.EnrollmentCount++
		identity.LastEnrolledAt = rec.CreatedAt

		idBytes, err := msgpack.Marshal(&identity)
		if err != nil {
			return err
		}
		if err := txn.Set(identityKey(rec.UserID), idBytes); err != nil {
			return err
		}
		return txn.Set(enrollmentKey(rec.UserID, rec.CreatedAt.UnixNano()), recBytes)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: save enrollment: %v", domain.ErrStorage, err)
	}
	return &identity, nil
}

func (r *EnrollmentRepository) LatestEnrollment(ctx context.Context, userID string) (*domain.EnrollmentRecord, error) {
	recs, err := r.ListEnrollments(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, domain.ErrNotFound
	}
	return recs[0], nil
}

// ListEnrollments iterates the user's prefix in reverse key order, which is
// newest first because the timestamp is zero padded.
func (r *EnrollmentRepository) ListEnrollments(_ context.Context, userID string, limit int) ([]*domain.EnrollmentRecord, error) {
	prefix := enrollmentPrefix(userID)
	var out []*domain.EnrollmentRecord

	err := r.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seeking in reverse lands on the last key <= the seek key.
		seek := append(append([]byte(nil), prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) == limit {
				break
			}
			var rec domain.EnrollmentRecord
			if err := it.Item().Value(func(v []byte) error {
				return msgpack.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list enrollments: %v", domain.ErrStorage, err)
	}
	return out, nil
}

func (r *EnrollmentRepository) GetIdentity(_ context.Context, userID string) (*domain.UserIdentity, error) {
	var identity domain.UserIdentity
	var found bool
	err := r.db.View(func(txn *badgerdb.Txn) error {
		var err error
		found, err = getValue(txn, identityKey(userID), &identity)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get identity: %v", domain.ErrStorage, err)
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	return &identity, nil
}

func (r *EnrollmentRepository) Ping(context.Context) error {
	if r.db.IsClosed() {
		return fmt.Errorf("%w: badger closed", domain.ErrStorage)
	}
	return nil
}

func getValue(txn *badgerdb.Txn, key []byte, dst any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(v []byte) error {
		return msgpack.Unmarshal(v, dst)
	})
}

func identityKey(userID string) []byte {
	return []byte("identity:" + userID)
}

// enrollmentPrefix ends with the separator so "bob" never matches "bobby".
func enrollmentPrefix(userID string) []byte {
	return []byte("enrollment:" + userID + ":")
}

func enrollmentKey(userID string, nanos int64) []byte {
	return fmt.Appendf(enrollmentPrefix(userID), "%020d", nanos)
}

// badgerLogger routes badger's logs to zerolog, dropping info and debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	l.log.Error().Msgf("badger: "+f, v...)
}

func (l badgerLogger) Warningf(f string, v ...any) {
	l.log.Warn().Msgf("badger: "+f, v...)
}

func (badgerLogger) Infof(string, ...any) {}

func (badgerLogger) Debugf(string, ...any) {}
