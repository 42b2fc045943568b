package audio

import "math"

const (
	pitchWindow = 640 // 40 ms
	minPitchHz  = 60.0
	maxPitchHz  = 400.0
	// Normalized autocorrelation a frame needs to count as pitched.
	pitchClarity = 0.5
)

// PitchTrack is the F0 contour of the voiced frames. Unpitched frames hold 0.
type PitchTrack struct {
	F0 []float64
}

// Pitched returns the number of frames with an F0 estimate.
func (p PitchTrack) Pitched() int {
	n := 0
	for _, f := range p.F0 {
		if f > 0 {
			n++
		}
	}
	return n
}

// Jitter is the mean absolute period difference between adjacent pitched
// frames divided by the mean period. It returns 0 with fewer than two
// adjacent pitched frames.
func (p PitchTrack) Jitter() float64 {
	var diffSum, periodSum float64
	var pairs, periods int
	for i, f := range p.F0 {
		if f <= 0 {
			continue
		}
		periodSum += 1 / f
		periods++
		if i > 0 && p.F0[i-1] > 0 {
			diffSum += math.Abs(1/f - 1/p.F0[i-1])
			pairs++
		}
	}
	if pairs == 0 || periodSum == 0 {
		return 0
	}
	return (diffSum / float64(pairs)) / (periodSum / float64(periods))
}

// TrackPitch estimates F0 for every voiced frame by normalized
// autocorrelation with parabolic peak interpolation.
func TrackPitch(sig *Signal, a *Analysis) PitchTrack {
	track := PitchTrack{F0: make([]float64, len(a.Voiced))}
	rate := float64(sig.SampleRate)
	minLag := int(rate / maxPitchHz)
	maxLag := int(rate / minPitchHz)
	corr := make([]float64, maxLag+2)

	for f, voiced := range a.Voiced {
		start := f * FrameShift
		if !voiced || start+pitchWindow > len(sig.Samples) {
			continue
		}
		win := sig.Samples[start : start+pitchWindow]

		best, bestLag := 0.0, 0
		for lag := minLag - 1; lag <= maxLag+1 && lag < pitchWindow; lag++ {
			corr[lag] = normalizedAutocorr(win, lag)
			if lag >= minLag && lag <= maxLag && corr[lag] > best {
				best, bestLag = corr[lag], lag
			}
		}
		if bestLag == 0 || best < pitchClarity {
			continue
		}
		// Prefer the shortest lag that is nearly as strong, avoiding
		// octave errors at multiples of the true period.
		for lag := minLag; lag < bestLag; lag++ {
			if corr[lag] >= 0.9*best && corr[lag] >= corr[lag-1] && corr[lag] >= corr[lag+1] {
				bestLag = lag
				break
			}
		}

		period := float64(bestLag)
		if bestLag > minLag-1 && bestLag < maxLag+1 {
			y0, y1, y2 := corr[bestLag-1], corr[bestLag], corr[bestLag+1]
			if den := y0 - 2*y1 + y2; den != 0 {
				shift := 0.5 * (y0 - y2) / den
				if math.Abs(shift) < 1 {
					period += shift
				}
			}
		}
		track.F0[f] = rate / period
	}
	return track
}

func normalizedAutocorr(x []float32, lag int) float64 {
	var num, e0, e1 float64
	for i := 0; i+lag < len(x); i++ {
		a, b := float64(x[i]), float64(x[i+lag])
		num += a * b
		e0 += a * a
		e1 += b * b
	}
	if e0 == 0 || e1 == 0 {
		return 0
	}
	return num / math.Sqrt(e0*e1)
}
