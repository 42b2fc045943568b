package audio

import (
	"math"
	"math/bits"
)

const (
	fingerprintBands  = 33
	fingerprintLowHz  = 300.0
	fingerprintHighHz = 3000.0

	// MaxAlignFrames bounds the frame offset searched by BitErrorRate.
	MaxAlignFrames = 100
	// MinOverlapFrames is the overlap required for a meaningful comparison.
	MinOverlapFrames = 50
)

// Fingerprint derives one 32-bit sub-fingerprint per frame from the sign of
// the energy difference between adjacent bands across adjacent frames. Two
// renditions of the same recording produce nearly identical bit streams even
// after re-encoding, while two live utterances of the same phrase do not.
func Fingerprint(a *Analysis) []uint32 {
	if len(a.Power) < 2 {
		return nil
	}
	edges := fingerprintBandEdges(len(a.Power[0]))

	energies := make([][]float64, len(a.Power))
	for f, power := range a.Power {
		e := make([]float64, fingerprintBands)
		for b := 0; b < fingerprintBands; b++ {
			for k := edges[b][0]; k < edges[b][1]; k++ {
				e[b] += power[k]
			}
		}
		energies[f] = e
	}

	out := make([]uint32, len(energies)-1)
	for f := 1; f < len(energies); f++ {
		cur, prev := energies[f], energies[f-1]
		var word uint32
		for b := 0; b < 32; b++ {
			d := (cur[b] - cur[b+1]) - (prev[b] - prev[b+1])
			if d > 0 {
				word |= 1 << uint(b)
			}
		}
		out[f-1] = word
	}
	return out
}

// fingerprintBandEdges returns logarithmically spaced [lo, hi) bin ranges,
// each at least one bin wide.
func fingerprintBandEdges(numBins int) [][2]int {
	binHz := float64(TargetSampleRate) / 2 / float64(numBins-1)
	ratio := math.Pow(fingerprintHighHz/fingerprintLowHz, 1.0/fingerprintBands)
	edges := make([][2]int, fingerprintBands)
	lo := fingerprintLowHz
	for b := range edges {
		hi := lo * ratio
		start := int(math.Round(lo / binHz))
		end := int(math.Round(hi / binHz))
		if end <= start {
			end = start + 1
		}
		if end > numBins {
			end = numBins
		}
		edges[b] = [2]int{start, end}
		lo = hi
	}
	return edges
}

// BitErrorRate returns the lowest fraction of differing bits between a and b
// over frame offsets within MaxAlignFrames. It returns 1 when the streams
// cannot be aligned with enough overlap.
func BitErrorRate(a, b []uint32) float64 {
	minOverlap := MinOverlapFrames
	if l := min(len(a), len(b)); l < minOverlap {
		minOverlap = l
	}
	if minOverlap < 10 {
		return 1
	}

	best := 1.0
	for off := -MaxAlignFrames; off <= MaxAlignFrames; off++ {
		// a[i] is compared with b[i+off].
		start := max(0, -off)
		end := min(len(a), len(b)-off)
		n := end - start
		if n < minOverlap {
			continue
		}
		diff := 0
		for i := start; i < end; i++ {
			diff += bits.OnesCount32(a[i] ^ b[i+off])
		}
		if ber := float64(diff) / float64(32*n); ber < best {
			best = ber
		}
	}
	return best
}
