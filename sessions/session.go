package sessions

import (
	"time"
)

// DeviceSession is an anonymous client install. It never expires on its own;
// only the tokens derived from it do.
type DeviceSession struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CliSession is one issued session/refresh token pair. The session token is a
// signed credential; ExpiresAt gates whether RefreshToken may still be used.
type CliSession struct {
	ID              string
	DeviceSessionID string
	SessionToken    string
	RefreshToken    string
	ExpiresAt       time.Time
	DeviceInfo      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Tokens is the credential set handed back to a client.
type Tokens struct {
	DeviceSessionID string
	SessionToken    string
	RefreshToken    string
	// ExpiresAt is when the refresh token stops being accepted.
	ExpiresAt time.Time
	// SessionExpiresAt is when the session token itself expires.
	SessionExpiresAt time.Time
}
