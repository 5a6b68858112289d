package sessions

import "context"

// Repo persists device sessions and CLI sessions. Missing rows are reported
// with errors.ErrNotFound.
type Repo interface {
	CreateDeviceSession(ctx context.Context, s *DeviceSession) error
	GetDeviceSession(ctx context.Context, id string) (*DeviceSession, error)
	// DeleteDeviceSession removes the device session and every CLI session issued for it.
	DeleteDeviceSession(ctx context.Context, id string) error

	// CreateCliSession fails if the refresh token is already in use.
	CreateCliSession(ctx context.Context, s *CliSession) error
	GetCliSessionByRefreshToken(ctx context.Context, refreshToken string) (*CliSession, error)
	GetCliSessionBySessionToken(ctx context.Context, sessionToken string) (*CliSession, error)
	UpdateCliSession(ctx context.Context, s *CliSession) error
	DeleteCliSession(ctx context.Context, id string) error
	// DeleteCliSessionBySessionToken reports whether a row was removed.
	DeleteCliSessionBySessionToken(ctx context.Context, sessionToken string) (bool, error)
}
