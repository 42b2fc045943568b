package domain

import (
	"strings"
	"time"
)

// Challenge is a one-time phrase the user must speak during secure
// verification.
type Challenge struct {
	ID        string
	Phrase    string
	Caller    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// ExpiredAt reports whether the challenge is past its expiry at now.
func (c *Challenge) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// NormalizePhrase lower-cases s and collapses runs of whitespace.
func NormalizePhrase(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// PhraseEquals compares two phrases case-insensitively after whitespace
// normalization.
func PhraseEquals(a, b string) bool {
	return NormalizePhrase(a) == NormalizePhrase(b)
}
