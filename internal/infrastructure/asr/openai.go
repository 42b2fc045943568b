// Package asr transcribes challenge utterances through an OpenAI-compatible
// speech-to-text endpoint.
package asr

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/truevoice/voice-verification/internal/core/domain"
)

const (
	DefaultModel   = "whisper-1"
	defaultTimeout = 30 * time.Second
)

// Config configures the transcriber.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
	// MaxRetries overrides the client's retry count when >= 0.
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAITranscriber sends WAV uploads to the transcription endpoint with
// temperature 0 and returns the lower-cased text.
type OpenAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAITranscriber(cfg Config) *OpenAITranscriber {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAITranscriber{client: &client, model: model, language: cfg.Language}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, data []byte) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:        openai.File(bytes.NewReader(data), "sample.wav", "audio/wav"),
		Model:       openai.AudioModel(t.model),
		Temperature: openai.Float(0),
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriberUnavailable, err)
	}
	return strings.ToLower(strings.TrimSpace(resp.Text)), nil
}
