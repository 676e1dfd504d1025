package identity

import "time"

// User is a registered wallet owner. Its ID is the owner of the user's wallet.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	Phone        string
	// TokenVersion is embedded in issued tokens; bumping it revokes them.
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Registration carries the fields accepted at sign up.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
}
