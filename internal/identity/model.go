package identity

import "time"

// User represents a registered PSV operator account.
type User struct {
	ID            string
	Email         string
	PasswordHash  []byte
	EmailVerified bool
	TokenVersion  int
	CreatedAt     time.Time
	LastLogin     *time.Time
}

// Identity is the signed-in handle handed to session consumers. It is a
// snapshot; holders never control the account's lifecycle.
type Identity struct {
	ID            string
	Email         string
	EmailVerified bool
}

// Identity returns the session handle for the user.
func (u User) Identity() *Identity {
	return &Identity{ID: u.ID, Email: u.Email, EmailVerified: u.EmailVerified}
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
	DeviceID string
}
