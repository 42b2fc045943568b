package domain

// VerificationState is a step of the per-request verification state machine.
type VerificationState string

const (
	StateReceived           VerificationState = "received"
	StateChallengeValidated VerificationState = "challenge_validated"
	StateFeaturesExtracted  VerificationState = "features_extracted"
	StateScored             VerificationState = "scored"
	StateDecided            VerificationState = "decided"
	StateRejected           VerificationState = "rejected"
)

// RejectReason names the gate that short-circuited a verification.
type RejectReason string

const (
	ReasonChallengeExpired        RejectReason = "challenge_expired"
	ReasonChallengeConsumed       RejectReason = "challenge_consumed"
	ReasonChallengeNotFound       RejectReason = "challenge_not_found"
	ReasonChallengePhraseMismatch RejectReason = "challenge_phrase_mismatch"
	ReasonUnintelligibleAudio     RejectReason = "unintelligible_audio"
)

// VerificationVerdict is produced once per verification request and never
// mutated afterwards. Values of gates that were not reached are zero.
type VerificationVerdict struct {
	IdentityVerified bool              `json:"identity_verified"`
	LivenessVerified bool              `json:"liveness_verified"`
	SpeakerScore     float64           `json:"speaker_score"`
	Transcript       string            `json:"transcript"`
	ChallengePhrase  string            `json:"challenge_phrase"`
	SimilarityScore  float64           `json:"similarity_score"`
	LivenessScore    float64           `json:"liveness_score"`
	Reason           RejectReason      `json:"reason,omitempty"`
	State            VerificationState `json:"-"`
}

// Rejected reports whether the verdict ended in the REJECTED state.
func (v VerificationVerdict) Rejected() bool {
	return v.State == StateRejected
}
