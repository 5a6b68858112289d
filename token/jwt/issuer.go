package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/kay-gateway/token/keys"
)

const (
	ClaimDeviceSessionID = "device_session_id"
	ClaimType            = "typ"

	// SessionTokenType marks bearer tokens issued to CLI and device clients.
	SessionTokenType = "cli_session"
)

// SessionClaims are the verified contents of a session token.
type SessionClaims struct {
	ID              string
	Issuer          string
	DeviceSessionID string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer signs session tokens bound to a device session.
type Issuer struct {
	signer keys.Signer
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(signer keys.Signer, issuer string, ttl time.Duration, opts ...Option) *Issuer {
	o := buildOptions(opts)
	return &Issuer{
		signer: signer,
		issuer: issuer,
		ttl:    ttl,
		now:    o.now,
	}
}

// Issue creates a signed session token for deviceSessionID.
func (i *Issuer) Issue(deviceSessionID string) (string, *SessionClaims, error) {
	if deviceSessionID == "" {
		return "", nil, fmt.Errorf("[Issuer Issue] device session id is required")
	}

	now := i.now()
	claims := &SessionClaims{
		ID:              uuid.New().String(),
		Issuer:          i.issuer,
		DeviceSessionID: deviceSessionID,
		IssuedAt:        time.Unix(now.Unix(), 0),
		ExpiresAt:       time.Unix(now.Add(i.ttl).Unix(), 0),
	}

	signed, err := i.signer.Sign(jwtlib.MapClaims{
		"iss":                claims.Issuer,
		"sub":                deviceSessionID,
		ClaimDeviceSessionID: deviceSessionID,
		ClaimType:            SessionTokenType,
		"iat":                claims.IssuedAt.Unix(),
		"exp":                claims.ExpiresAt.Unix(),
		"jti":                claims.ID,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, claims, nil
}
