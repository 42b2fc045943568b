package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrLowQuality is returned by Check when the signal is too short, too quiet
// or too noisy to analyse.
var ErrLowQuality = errors.New("audio: unintelligible")

// Quality summarises the measurements behind the quality gate.
type Quality struct {
	Duration    time.Duration
	SNRDecibels float64
	PeakDBFS    float64
	VoicedRatio float64
}

// QualityGate holds the acceptance limits.
type QualityGate struct {
	MinDuration time.Duration
	MinSNR      float64 // dB
	MinPeakDBFS float64
}

// DefaultQualityGate is 1 s, 6 dB SNR and a peak above -50 dBFS.
var DefaultQualityGate = QualityGate{
	MinDuration: time.Second,
	MinSNR:      6,
	MinPeakDBFS: -50,
}

// MeasureQuality derives quality figures from a signal and its analysis.
func MeasureQuality(sig *Signal, a *Analysis) Quality {
	q := Quality{
		Duration: sig.Duration(),
		PeakDBFS: math.Inf(-1),
	}
	if len(a.RMS) == 0 {
		return q
	}
	floor := math.Max(a.NoiseFloor, 1e-6)
	q.SNRDecibels = 20 * math.Log10(math.Max(a.SpeechLevel, 1e-6)/floor)
	if a.Peak > 0 {
		q.PeakDBFS = 20 * math.Log10(a.Peak)
	}
	q.VoicedRatio = float64(a.VoicedCount()) / float64(len(a.RMS))
	return q
}

// Check returns an error wrapping ErrLowQuality when q fails the gate.
func (g QualityGate) Check(q Quality) error {
	switch {
	case q.Duration < g.MinDuration:
		return fmt.Errorf("%w: duration %s below %s", ErrLowQuality, q.Duration, g.MinDuration)
	case q.PeakDBFS < g.MinPeakDBFS:
		return fmt.Errorf("%w: peak %.1f dBFS is silence", ErrLowQuality, q.PeakDBFS)
	case q.SNRDecibels < g.MinSNR:
		return fmt.Errorf("%w: snr %.1f dB below %.1f dB", ErrLowQuality, q.SNRDecibels, g.MinSNR)
	}
	return nil
}
