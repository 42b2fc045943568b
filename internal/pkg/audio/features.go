package audio

import (
	"crypto/sha256"
	"encoding/hex"
)

// Features is everything derived from one upload.
type Features struct {
	Duration float64 // seconds
	Quality  Quality

	Embedding   []float32
	Checksum    string // sha256 of the raw upload, hex
	Fingerprint []uint32

	Flatness      float64
	Jitter        float64
	PitchedFrames int
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Extract decodes a WAV upload and derives its features. Decoding errors are
// returned as is; a signal that fails the quality gate yields an error
// wrapping ErrLowQuality.
func (an *Analyzer) Extract(data []byte) (*Features, error) {
	sig, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	a := an.Analyze(sig)
	q := MeasureQuality(sig, a)
	if err := an.gate.Check(q); err != nil {
		return nil, err
	}
	emb := an.Embed(a)
	if emb == nil {
		return nil, ErrLowQuality
	}
	pitch := TrackPitch(sig, a)

	return &Features{
		Duration:      sig.Duration().Seconds(),
		Quality:       q,
		Embedding:     emb,
		Checksum:      Checksum(data),
		Fingerprint:   Fingerprint(a),
		Flatness:      SpectralFlatness(a),
		Jitter:        pitch.Jitter(),
		PitchedFrames: pitch.Pitched(),
	}, nil
}
