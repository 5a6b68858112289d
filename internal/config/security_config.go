package config

import "time"

type SecurityConfig interface {
	GetSessionTokenTTL() time.Duration
	GetCliRefreshTokenTTL() time.Duration
	GetRefreshTokenLength() int
	GetSessionIssuer() string
	GetSigningSecret() string
	GetSigningKeyPEM() string
	GetSigningKeyID() string
	GetEncryptionKey() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSessionTokenTTL() time.Duration {
	return getDuration("SESSION_TOKEN_TTL", 8*time.Hour)
}

func (Security) GetCliRefreshTokenTTL() time.Duration {
	return getDuration("CLI_REFRESH_TOKEN_TTL", 30*24*time.Hour) // 30 days
}

func (Security) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (Security) GetSessionIssuer() string {
	return GetEnv("SESSION_ISSUER", "kay-gateway")
}

// GetSigningSecret is the HMAC secret for session tokens. Only used when no
// RSA key is configured.
func (Security) GetSigningSecret() string {
	return GetEnv("SESSION_SIGNING_SECRET", "")
}

func (Security) GetSigningKeyPEM() string {
	return GetEnv("SESSION_SIGNING_KEY_PEM", "")
}

func (Security) GetSigningKeyID() string {
	return GetEnv("SESSION_SIGNING_KEY_ID", "kay-session-1")
}

// GetEncryptionKey returns the hex encoded key used to seal provider tokens at rest.
func (Security) GetEncryptionKey() string {
	return GetEnv("TOKEN_ENCRYPTION_KEY", "")
}
