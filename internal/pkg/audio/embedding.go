package audio

import (
	"fmt"
	"math"
)

// EmbeddingDim is the length of an embedding: a mean and a standard
// deviation per mel band.
const EmbeddingDim = 2 * NumMels

// EmbeddingVersion identifies the embedding layout. Stored embeddings with a
// different version cannot be compared.
var EmbeddingVersion = fmt.Sprintf("fbank-stats-v1/%d", EmbeddingDim)

// Embed returns the log-mel statistics embedding of the voiced frames. Band
// means are centred across bands so a constant gain change cancels out, and
// the result is L2 normalized. It returns nil when no frame is voiced.
func (an *Analyzer) Embed(a *Analysis) []float32 {
	var (
		sum   = make([]float64, NumMels)
		sumSq = make([]float64, NumMels)
		mel   []float64
		n     int
	)
	for f, power := range a.Power {
		if !a.Voiced[f] {
			continue
		}
		mel = an.LogMel(power, mel)
		for m, v := range mel {
			sum[m] += v
			sumSq[m] += v * v
		}
		n++
	}
	if n == 0 {
		return nil
	}

	vec := make([]float64, EmbeddingDim)
	var grand float64
	for m := 0; m < NumMels; m++ {
		mean := sum[m] / float64(n)
		vec[m] = mean
		grand += mean
		variance := sumSq[m]/float64(n) - mean*mean
		if variance < 0 {
			variance = 0
		}
		vec[NumMels+m] = math.Sqrt(variance)
	}
	grand /= NumMels
	for m := 0; m < NumMels; m++ {
		vec[m] -= grand
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, EmbeddingDim)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
