package domain

import "time"

// User is the persisted account record. Email is the identity key used by
// every token the service issues.
type User struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string // argon2id PHC string
	Avatar         string // public URL, may be empty
	EmailConfirmed bool

	// RefreshTokenHash is the fingerprint of the single refresh token
	// currently valid for this user, or nil when no session is active.
	RefreshTokenHash *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSession reports whether a refresh token is currently stored.
func (u User) HasSession() bool {
	return u.RefreshTokenHash != nil && *u.RefreshTokenHash != ""
}
