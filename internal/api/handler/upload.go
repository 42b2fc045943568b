package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/pkg/audio"
)

const (
	audioField = "audio"
	// multipartOverhead is the allowance for form fields and part headers on
	// top of the audio limit.
	multipartOverhead = 1 << 20
)

var wavContentTypes = map[string]bool{
	"audio/wav":      true,
	"audio/x-wav":    true,
	"audio/wave":     true,
	"audio/vnd.wave": true,
}

// limitBody caps the request body before the multipart form is parsed.
func limitBody(c echo.Context, maxBytes int64) {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes+multipartOverhead)
}

// bindForm binds the multipart text fields into dst and validates them.
func bindForm(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		if tooLarge(err) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return fmt.Errorf("%w: invalid form payload", domain.ErrValidation)
	}
	return c.Validate(dst)
}

// readAudio returns the uploaded audio bytes and their media type. WAV media
// types are accepted as declared; application/octet-stream (or no type) must
// carry a RIFF/WAVE header.
func readAudio(c echo.Context, maxBytes int64) ([]byte, string, error) {
	fh, err := c.FormFile(audioField)
	if err != nil {
		if tooLarge(err) {
			return nil, "", echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return nil, "", fmt.Errorf("%w: audio file is required", domain.ErrValidation)
	}
	if fh.Size > maxBytes {
		return nil, "", echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("audio exceeds %d bytes", maxBytes))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("audio exceeds %d bytes", maxBytes))
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: audio file is empty", domain.ErrValidation)
	}

	mediaType := "application/octet-stream"
	if ct := fh.Header.Get(echo.HeaderContentType); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = mt
		}
	}
	switch {
	case wavContentTypes[mediaType]:
	case mediaType == "application/octet-stream" && audio.LooksLikeWAV(data):
		mediaType = "audio/wav"
	default:
		return nil, "", fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, mediaType)
	}
	return data, mediaType, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
