package audio

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Frame geometry at TargetSampleRate.
const (
	FrameLength = 400 // 25 ms
	FrameShift  = 160 // 10 ms
	FFTSize     = 512
	NumMels     = 40
)

// Analysis holds the per-frame measurements shared by every feature.
type Analysis struct {
	// Power is the one-sided power spectrum of each frame (FFTSize/2+1 bins).
	Power [][]float64
	// RMS is the root-mean-square amplitude of each frame.
	RMS []float64
	// Voiced marks frames whose energy is well above the noise floor.
	Voiced []bool

	NoiseFloor  float64 // 10th percentile frame RMS
	SpeechLevel float64 // 90th percentile frame RMS
	Peak        float64 // maximum frame RMS
}

// VoicedCount returns the number of voiced frames.
func (a *Analysis) VoicedCount() int {
	n := 0
	for _, v := range a.Voiced {
		if v {
			n++
		}
	}
	return n
}

// Analyzer computes framed power spectra. It holds only read-only tables
// after construction, so one Analyzer may be shared by goroutines.
type Analyzer struct {
	gate       QualityGate
	window     []float64
	melFilters [][]float64
}

// NewAnalyzer builds the window and mel filterbank tables.
func NewAnalyzer(gate QualityGate) *Analyzer {
	return &Analyzer{
		gate:       gate,
		window:     hannWindow(FrameLength),
		melFilters: melFilterbank(FFTSize, NumMels, TargetSampleRate),
	}
}

// Analyze frames the signal and computes power spectra and energy statistics.
func (an *Analyzer) Analyze(sig *Signal) *Analysis {
	samples := sig.Samples
	if len(samples) < FrameLength {
		return &Analysis{}
	}
	numFrames := (len(samples)-FrameLength)/FrameShift + 1

	fft := fourier.NewFFT(FFTSize)
	frame := make([]float64, FFTSize)
	var coeffs []complex128

	a := &Analysis{
		Power: make([][]float64, numFrames),
		RMS:   make([]float64, numFrames),
	}
	for f := 0; f < numFrames; f++ {
		start := f * FrameShift
		var sumSq float64
		for i := 0; i < FFTSize; i++ {
			frame[i] = 0
		}
		for i := 0; i < FrameLength; i++ {
			s := float64(samples[start+i])
			sumSq += s * s
			frame[i] = s * an.window[i]
		}
		a.RMS[f] = math.Sqrt(sumSq / FrameLength)

		coeffs = fft.Coefficients(coeffs, frame)
		power := make([]float64, FFTSize/2+1)
		for k := range power {
			re, im := real(coeffs[k]), imag(coeffs[k])
			power[k] = re*re + im*im
		}
		a.Power[f] = power
	}

	sorted := append([]float64(nil), a.RMS...)
	sort.Float64s(sorted)
	a.NoiseFloor = percentile(sorted, 0.10)
	a.SpeechLevel = percentile(sorted, 0.90)
	a.Peak = sorted[len(sorted)-1]

	// Voiced: within 10 dB of the speech level and clearly above the floor.
	threshold := math.Max(a.SpeechLevel*0.316, a.NoiseFloor*2)
	a.Voiced = make([]bool, numFrames)
	for f, r := range a.RMS {
		a.Voiced[f] = r > 1e-4 && r >= threshold
	}
	return a
}

// LogMel applies the mel filterbank to one power spectrum.
func (an *Analyzer) LogMel(power []float64, out []float64) []float64 {
	if cap(out) < NumMels {
		out = make([]float64, NumMels)
	}
	out = out[:NumMels]
	for m, filter := range an.melFilters {
		var sum float64
		for k, w := range filter {
			if w != 0 {
				sum += power[k] * w
			}
		}
		if sum < 1e-10 {
			sum = 1e-10
		}
		out[m] = math.Log(sum)
	}
	return out
}

// SpectralFlatness returns the mean spectral flatness (geometric over
// arithmetic mean of the power spectrum) across voiced frames. Tonal speech
// sits well below noise-like signals, which approach 0.56.
func SpectralFlatness(a *Analysis) float64 {
	var total float64
	var n int
	for f, power := range a.Power {
		if !a.Voiced[f] {
			continue
		}
		var logSum, sum float64
		bins := len(power) - 1
		for k := 1; k < len(power); k++ {
			p := power[k] + 1e-12
			logSum += math.Log(p)
			sum += p
		}
		arith := sum / float64(bins)
		if arith <= 0 {
			continue
		}
		total += math.Exp(logSum/float64(bins)) / arith
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// melFilterbank builds triangular HTK mel filters over FFT bins.
func melFilterbank(nFFT, nMels, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 { return 2595.0 * math.Log10(1.0+hz/700.0) }
	melToHz := func(mel float64) float64 { return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0) }

	numBins := nFFT/2 + 1
	fMax := float64(sampleRate) / 2
	mMin, mMax := hzToMel(20), hzToMel(fMax)

	pts := make([]float64, nMels+2)
	for i := range pts {
		pts[i] = melToHz(mMin + float64(i)*(mMax-mMin)/float64(nMels+1))
	}

	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		filters[m] = make([]float64, numBins)
		for k := 0; k < numBins; k++ {
			freq := float64(k) * fMax / float64(numBins-1)
			lower := (freq - pts[m]) / (pts[m+1] - pts[m])
			upper := (pts[m+2] - freq) / (pts[m+2] - pts[m+1])
			if v := math.Min(lower, upper); v > 0 {
				filters[m][k] = v
			}
		}
	}
	return filters
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}

// percentile expects sorted input.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
