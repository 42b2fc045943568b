// Command server runs the voice verification API.
//
// @title                       Voice Verification API
// @version                     1.0
// @description                 Voice enrollment, speaker verification, liveness detection and challenge-phrase matching.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/api"
	"github.com/truevoice/voice-verification/internal/core/ports"
	"github.com/truevoice/voice-verification/internal/core/service"
	"github.com/truevoice/voice-verification/internal/infrastructure/asr"
	"github.com/truevoice/voice-verification/internal/infrastructure/queue"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
	"github.com/truevoice/voice-verification/internal/pkg/config"
	"github.com/truevoice/voice-verification/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "voice-verification",
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(log)

	// --- Inference workers ---
	workers := cfg.Inference.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	dispatcher := queue.NewDispatcher(workers, logger.Component("dispatcher"))
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	dispatcher.Start(workerCtx)

	// --- Services ---
	plainMode, err := service.ParseLivenessMode(cfg.Liveness.PlainMode)
	if err != nil {
		return fmt.Errorf("VERIFY_PLAIN_LIVENESS: %w", err)
	}

	gate := audio.DefaultQualityGate
	gate.MinDuration = cfg.Audio.MinDuration
	gate.MinSNR = cfg.Audio.MinSNR
	extractor := service.NewExtractor(gate)

	var transcriber ports.Transcriber
	if cfg.ASR.Enabled() {
		transcriber = asr.NewOpenAITranscriber(asr.Config{
			BaseURL:    cfg.ASR.BaseURL,
			APIKey:     cfg.ASR.APIKey,
			Model:      cfg.ASR.Model,
			Language:   cfg.ASR.Language,
			Timeout:    cfg.ASR.Timeout,
			MaxRetries: 1,
		})
	} else {
		log.Warn().Msg("ASR_BASE_URL and ASR_API_KEY unset: secure verification is unavailable")
	}

	challengeSvc := service.NewChallengeService(st.challenges, service.ChallengeConfig{
		Phrases:   cfg.Challenge.Phrases,
		TTL:       cfg.Challenge.TTL,
		Retention: cfg.Challenge.Retention,
	}, logger.Component("challenge"))

	enrollmentSvc := service.NewEnrollmentService(
		st.enrollments, extractor, dispatcher, cfg.Inference.WriteTimeout, logger.Component("enrollment"),
	)

	livenessSvc := service.NewLivenessService(st.enrollments, st.history, service.LivenessConfig{
		Threshold: cfg.Thresholds.Liveness,
		ReplayBER: cfg.Liveness.ReplayBER,
	}, logger.Component("liveness"))

	verificationSvc := service.NewVerificationService(
		enrollmentSvc, challengeSvc, extractor, transcriber, livenessSvc, dispatcher,
		service.VerificationConfig{
			SpeakerThreshold: cfg.Thresholds.Speaker,
			PhraseThreshold:  cfg.Thresholds.Phrase,
			PlainLiveness:    plainMode,
		},
		logger.Component("verification"),
	)

	authSvc := service.NewAuthService(st.users, cfg.JWTSecret, 24*time.Hour)
	if err := authSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET unset: admin tokens are signed with an empty key")
	}

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		Challenges:    challengeSvc,
		Enrollment:    enrollmentSvc,
		Verification:  verificationSvc,
		Auth:          authSvc,
		HealthChecks:  st.checks,
		JWTSecret:     cfg.JWTSecret,
		MaxAudioBytes: cfg.Audio.MaxBytes,
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreBackend).
			Int("workers", workers).
			Str("model_version", extractor.ModelVersion()).
			Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
