package domain

import "time"

const (
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
)

// User is an operator account for the admin API. End users of the voice
// flows are identified only by UserIdentity.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
