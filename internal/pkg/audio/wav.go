// Package audio turns WAV uploads into analysable 16 kHz mono signals and
// derives the features used for enrollment, verification and liveness:
// quality estimates, a spectral speaker embedding, an acoustic fingerprint
// and a pitch contour.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// TargetSampleRate is the rate every decoded signal is converted to.
const TargetSampleRate = 16000

const (
	minSourceRate = 8000
	maxSourceRate = 192000
	wavFormatPCM  = 1
)

var (
	// ErrNotWAV is returned when the payload is not a RIFF/WAVE container.
	ErrNotWAV = errors.New("audio: not a WAV file")
	// ErrUnsupportedEncoding is returned for WAV files that are not integer PCM
	// at a supported bit depth and rate.
	ErrUnsupportedEncoding = errors.New("audio: unsupported WAV encoding")
	// ErrEmpty is returned when the container holds no samples.
	ErrEmpty = errors.New("audio: no samples")
)

// Signal is a mono signal at TargetSampleRate with samples in [-1, 1].
type Signal struct {
	Samples    []float32
	SampleRate int

	// Source format, kept for logging.
	SourceRate     int
	SourceChannels int
	SourceBitDepth int
}

// Duration returns the signal length.
func (s *Signal) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// LooksLikeWAV reports whether data starts with a RIFF/WAVE header.
func LooksLikeWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV parses an integer PCM WAV file, downmixes it to mono and
// resamples it to TargetSampleRate. Decoding is deterministic.
func DecodeWAV(data []byte) (*Signal, error) {
	if !LooksLikeWAV(data) {
		return nil, ErrNotWAV
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, ErrNotWAV
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, d.WavAudioFormat)
	}

	depth := int(d.BitDepth)
	switch depth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedEncoding, depth)
	}
	rate := int(d.SampleRate)
	if rate < minSourceRate || rate > maxSourceRate {
		return nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedEncoding, rate)
	}
	channels := int(d.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedEncoding, channels)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read pcm: %w", err)
	}
	if buf == nil || len(buf.Data) < channels {
		return nil, ErrEmpty
	}

	mono := downmix(buf.Data, channels, depth)
	if rate != TargetSampleRate {
		mono, err = resample(mono, rate, TargetSampleRate)
		if err != nil {
			return nil, err
		}
	}
	if len(mono) == 0 {
		return nil, ErrEmpty
	}

	samples := make([]float32, len(mono))
	for i, v := range mono {
		samples[i] = float32(clamp(v, -1, 1))
	}

	return &Signal{
		Samples:        samples,
		SampleRate:     TargetSampleRate,
		SourceRate:     rate,
		SourceChannels: channels,
		SourceBitDepth: depth,
	}, nil
}

// downmix averages interleaved integer frames into normalized mono samples.
// 8-bit PCM is unsigned with silence at 128; wider depths are signed.
func downmix(data []int, channels, depth int) []float64 {
	scale := float64(int64(1) << uint(depth-1))
	var offset float64
	if depth == 8 {
		offset = scale
	}
	frames := len(data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(data[i*channels+c]) - offset
		}
		out[i] = sum / float64(channels) / scale
	}
	return out
}

func resample(in []float64, from, to int) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("audio: resample %d->%d: %w", from, to, err)
	}
	return out, nil
}

// EncodeWAV writes samples as a 16-bit mono PCM WAV file.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, wavFormatPCM)
	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(clamp(float64(s), -1, 1) * 32767)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	return enc.Close()
}

// EncodeWAVBytes is EncodeWAV into memory.
func EncodeWAVBytes(samples []float32, sampleRate int) ([]byte, error) {
	var sb seekBuffer
	if err := EncodeWAV(&sb, samples, sampleRate); err != nil {
		return nil, err
	}
	return sb.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = len(s.buf)
	default:
		return 0, errors.New("audio: invalid whence")
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("audio: negative position")
	}
	s.pos = next
	return int64(next), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
