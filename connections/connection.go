package connections

import (
	"time"
)

type Status string

const StatusActive Status = "active"

// Credentials is the provider secret material stored for a connection.
// RefreshToken and ExpiresAt are absent for non-OAuth providers.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// SameMaterial reports whether both credentials carry identical tokens.
func (c Credentials) SameMaterial(o Credentials) bool {
	return c.AccessToken == o.AccessToken && c.RefreshToken == o.RefreshToken
}

// ExpiresWithin reports whether the access token is expired at now+margin.
// Credentials without an expiry never expire.
func (c Credentials) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(margin).Before(*c.ExpiresAt)
}

// Connection binds one device session to one external service.
type Connection struct {
	ID              string
	DeviceSessionID string
	ServiceName     ServiceName
	Credentials     Credentials
	Metadata        Metadata
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ServiceStatus is the read-only projection of one service for a session.
type ServiceStatus struct {
	Connected bool           `json:"connected"`
	User      map[string]any `json:"user,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SessionStatus reports every known service for a device session.
type SessionStatus map[ServiceName]ServiceStatus
