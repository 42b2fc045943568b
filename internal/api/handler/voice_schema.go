package handler

import "time"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request types (multipart form fields; the audio part is read separately) ---

type enrollForm struct {
	UserID string `form:"user_id" validate:"required,user_id"`
}

type verifyForm struct {
	UserID    string `form:"user_id"   validate:"required,user_id"`
	Threshold string `form:"threshold" validate:"omitempty,numeric"`
}

type secureVerifyForm struct {
	UserID          string `form:"user_id"          validate:"required,user_id"`
	ChallengePhrase string `form:"challenge_phrase" validate:"required,max=256"`
	ChallengeID     string `form:"challenge_id"     validate:"omitempty,uuid"`
}

// --- Response types ---

type challengeResponse struct {
	ChallengePhrase string    `json:"challenge_phrase"`
	ChallengeID     string    `json:"challenge_id"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type enrollResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type verifyResponse struct {
	Status           string  `json:"status"`
	Message          string  `json:"message"`
	Score            float64 `json:"score"`
	IsMatch          bool    `json:"is_match"`
	LivenessVerified bool    `json:"liveness_verified"`
	Reason           string  `json:"reason,omitempty"`
}

// verdictResponse is the secure verification verdict.
type verdictResponse struct {
	IdentityVerified bool    `json:"identity_verified"`
	LivenessVerified bool    `json:"liveness_verified"`
	SpeakerScore     float64 `json:"speaker_score"`
	Transcript       string  `json:"transcript"`
	ChallengePhrase  string  `json:"challenge_phrase"`
	SimilarityScore  float64 `json:"similarity_score"`
	LivenessScore    float64 `json:"liveness_score"`
	Status           string  `json:"status"`
	Reason           string  `json:"reason,omitempty"`
}

// --- Admin ---

type enrollmentSummary struct {
	ID           string    `json:"id"`
	ModelVersion string    `json:"model_version"`
	Checksum     string    `json:"checksum"`
	CreatedAt    time.Time `json:"created_at"`
}

type userProfileResponse struct {
	UserID          string              `json:"user_id"`
	CreatedAt       time.Time           `json:"created_at"`
	LastEnrolledAt  time.Time           `json:"last_enrolled_at"`
	EnrollmentCount int                 `json:"enrollment_count"`
	Enrollments     []enrollmentSummary `json:"enrollments"`
}
