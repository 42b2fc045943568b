package domain

import "errors"

// Input and lookup errors.
var (
	ErrValidation       = errors.New("validation failed")
	ErrUnsupportedMedia = errors.New("unsupported audio format")
	ErrNotFound         = errors.New("user not enrolled")
)

// Challenge lifecycle errors. All of them are terminal for the challenge:
// the caller must request a new one.
var (
	ErrChallengeExpired        = errors.New("challenge expired")
	ErrChallengeConsumed       = errors.New("challenge already consumed")
	ErrChallengeNotFound       = errors.New("challenge not found")
	ErrChallengePhraseMismatch = errors.New("challenge phrase mismatch")
)

// Audio and model errors.
var (
	ErrUnintelligibleAudio    = errors.New("unintelligible audio")
	ErrModelVersionMismatch   = errors.New("model version mismatch")
	ErrTranscriberUnavailable = errors.New("transcriber unavailable")
)

// ErrStorage wraps persistence I/O failures.
var ErrStorage = errors.New("storage failure")

// Admin auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrForbidden          = errors.New("access forbidden")
)

// IsRejection reports whether err is an expected input-quality condition that
// ends a verification in a REJECTED verdict instead of an error response.
func IsRejection(err error) bool {
	return RejectReasonFor(err) != ""
}

// RejectReasonFor maps a rejection error to its verdict reason code.
// Returns "" for errors that are not rejections.
func RejectReasonFor(err error) RejectReason {
	switch {
	case errors.Is(err, ErrChallengeExpired):
		return ReasonChallengeExpired
	case errors.Is(err, ErrChallengeConsumed):
		return ReasonChallengeConsumed
	case errors.Is(err, ErrChallengeNotFound):
		return ReasonChallengeNotFound
	case errors.Is(err, ErrChallengePhraseMismatch):
		return ReasonChallengePhraseMismatch
	case errors.Is(err, ErrUnintelligibleAudio):
		return ReasonUnintelligibleAudio
	}
	return ""
}
