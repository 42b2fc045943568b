package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
)

// Extractor adapts the audio analyzer to the domain error taxonomy.
type Extractor struct {
	analyzer *audio.Analyzer
}

func NewExtractor(gate audio.QualityGate) *Extractor {
	return &Extractor{analyzer: audio.NewAnalyzer(gate)}
}

// Extract decodes and analyses one upload.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*audio.Features, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := e.analyzer.Extract(data)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, audio.ErrLowQuality), errors.Is(err, audio.ErrEmpty):
		return nil, fmt.Errorf("%w: %v", domain.ErrUnintelligibleAudio, err)
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
}

// ModelVersion identifies the embedding layout produced by Extract.
func (e *Extractor) ModelVersion() string {
	return audio.EmbeddingVersion
}
