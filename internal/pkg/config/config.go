// Package config loads service settings from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Storage backends for enrollment records.
const (
	BackendMongo  = "mongo"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string `env:"CORS_ALLOW_ORIGINS, default=*"`

	// Bootstrap admin for the /v1/admin API. Skipped when either is empty.
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// StoreBackend selects where enrollments live: mongo, badger or memory.
	// Challenges and replay history use Redis unless the backend is memory.
	StoreBackend string `env:"STORE_BACKEND, default=mongo"`

	Mongo      MongoConfig
	Redis      RedisConfig
	Badger     BadgerConfig
	Thresholds ThresholdConfig
	Challenge  ChallengeConfig
	Audio      AudioConfig
	Liveness   LivenessConfig
	ASR        ASRConfig
	Inference  InferenceConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=voice_verification"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type BadgerConfig struct {
	Dir string `env:"BADGER_DIR, default=./data/badger"`
}

type ThresholdConfig struct {
	Speaker  float64 `env:"THRESHOLD_SPEAKER,  default=0.75"`
	Liveness float64 `env:"THRESHOLD_LIVENESS, default=0.6"`
	Phrase   float64 `env:"THRESHOLD_PHRASE,   default=0.8"`
}

type ChallengeConfig struct {
	TTL       time.Duration `env:"CHALLENGE_TTL,       default=120s"`
	Retention time.Duration `env:"CHALLENGE_RETENTION, default=10m"`
	// Phrases replaces the built-in corpus when set (comma separated).
	Phrases []string `env:"CHALLENGE_PHRASES"`
}

type AudioConfig struct {
	MinDuration time.Duration `env:"AUDIO_MIN_DURATION, default=1s"`
	MinSNR      float64       `env:"AUDIO_MIN_SNR_DB,   default=6"`
	MaxBytes    int64         `env:"AUDIO_MAX_BYTES,    default=10485760"`
}

type LivenessConfig struct {
	ReplayBER float64 `env:"LIVENESS_REPLAY_BER, default=0.2"`
	// PlainMode is off, report or enforce.
	PlainMode    string        `env:"VERIFY_PLAIN_LIVENESS, default=report"`
	HistoryLimit int           `env:"REPLAY_HISTORY_LIMIT,  default=20"`
	HistoryTTL   time.Duration `env:"REPLAY_HISTORY_TTL,    default=720h"`
}

type ASRConfig struct {
	BaseURL  string        `env:"ASR_BASE_URL"`
	APIKey   string        `env:"ASR_API_KEY"`
	Model    string        `env:"ASR_MODEL,    default=whisper-1"`
	Language string        `env:"ASR_LANGUAGE, default=en"`
	Timeout  time.Duration `env:"ASR_TIMEOUT,  default=30s"`
}

// Enabled reports whether a transcription endpoint is configured.
func (c ASRConfig) Enabled() bool {
	return c.APIKey != "" || c.BaseURL != ""
}

type InferenceConfig struct {
	// Workers defaults to the number of CPUs when zero.
	Workers      int           `env:"INFERENCE_WORKERS"`
	WriteTimeout time.Duration `env:"STORE_WRITE_TIMEOUT, default=10s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMongo, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be mongo, badger or memory, got %q", c.StoreBackend)
	}
	for name, v := range map[string]float64{
		"THRESHOLD_SPEAKER":  c.Thresholds.Speaker,
		"THRESHOLD_LIVENESS": c.Thresholds.Liveness,
		"THRESHOLD_PHRASE":   c.Thresholds.Phrase,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	if c.Challenge.TTL <= 0 {
		return fmt.Errorf("CHALLENGE_TTL must be positive")
	}
	if c.Audio.MaxBytes <= 0 {
		return fmt.Errorf("AUDIO_MAX_BYTES must be positive")
	}
	return nil
}

// IsDevelopment reports whether ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
