package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/pkg/config"
)

func TestOpenStoresMemory(t *testing.T) {
	cfg := &config.Config{StoreBackend: config.BackendMemory}
	cfg.Liveness.HistoryLimit = 5
	cfg.Liveness.HistoryTTL = time.Hour

	st, err := openStores(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer st.close(zerolog.Nop())

	if st.enrollments == nil || st.challenges == nil || st.history == nil || st.users == nil {
		t.Fatalf("memory backend left a store unset: %+v", st)
	}
	if len(st.checks) != 0 {
		t.Fatalf("memory backend should register no readiness checks, got %d", len(st.checks))
	}
}
