package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/api/handler"
	"github.com/truevoice/voice-verification/internal/core/ports"
	badgerstore "github.com/truevoice/voice-verification/internal/infrastructure/db/badger"
	"github.com/truevoice/voice-verification/internal/infrastructure/db/memory"
	mongostore "github.com/truevoice/voice-verification/internal/infrastructure/db/mongo"
	redisstore "github.com/truevoice/voice-verification/internal/infrastructure/db/redis"
	"github.com/truevoice/voice-verification/internal/pkg/config"
	"github.com/truevoice/voice-verification/pkg/logger"
)

const probeTimeout = 2 * time.Second

// stores bundles the persistence adapters selected by STORE_BACKEND.
type stores struct {
	enrollments ports.EnrollmentRepository
	challenges  ports.ChallengeStore
	history     ports.SampleHistory
	users       ports.AuthRepository
	checks      map[string]handler.Checker
	closers     []func(context.Context) error
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (st *stores, err error) {
	st = &stores{checks: make(map[string]handler.Checker)}
	defer func() {
		if err != nil {
			st.close(log)
		}
	}()

	switch cfg.StoreBackend {
	case config.BackendMemory:
		repo := memory.NewEnrollmentRepository()
		st.enrollments = repo
		st.users = memory.NewAuthRepository()
		st.challenges = memory.NewChallengeStore()
		st.history = memory.NewSampleHistory(cfg.Liveness.HistoryLimit, cfg.Liveness.HistoryTTL)
		log.Warn().Msg("memory backend: enrollments, challenges and operators are lost on restart")
		return st, nil

	case config.BackendMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return st, err
		}
		st.closers = append(st.closers, client.Disconnect)

		repo := mongostore.NewEnrollmentRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return st, fmt.Errorf("enrollment indexes: %w", err)
		}
		users := mongostore.NewAuthRepository(db)
		if err := users.EnsureIndexes(ctx); err != nil {
			return st, fmt.Errorf("operator indexes: %w", err)
		}
		st.enrollments = repo
		st.users = users
		st.checks["mongodb"] = repo.Ping

	case config.BackendBadger:
		repo, err := badgerstore.Open(badgerstore.Options{
			Dir:    cfg.Badger.Dir,
			Logger: logger.Component("badger"),
		})
		if err != nil {
			return st, err
		}
		st.closers = append(st.closers, func(context.Context) error { return repo.Close() })
		st.enrollments = repo
		st.users = memory.NewAuthRepository()
		st.checks["badger"] = repo.Ping
	}

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return st, err
	}
	st.closers = append(st.closers, func(context.Context) error { return rdb.Close() })
	st.challenges = redisstore.NewChallengeStore(rdb)
	st.history = redisstore.NewSampleHistory(rdb, cfg.Liveness.HistoryLimit, cfg.Liveness.HistoryTTL)
	st.checks["redis"] = func(ctx context.Context) error {
		return redisstore.Ping(ctx, rdb, probeTimeout)
	}
	return st, nil
}

// close releases connections in reverse order of opening.
func (st *stores) close(log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}
	st.closers = nil
}
