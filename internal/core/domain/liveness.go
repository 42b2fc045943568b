package domain

// LivenessAssessment is the outcome of the anti-spoofing checks on one
// sample.
type LivenessAssessment struct {
	Live  bool
	Score float64

	// Replay is set when the sample matched a previously seen recording.
	Replay       bool
	BitErrorRate float64
	Flatness     float64
	Jitter       float64
}
