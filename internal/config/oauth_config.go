package config

import "time"

// OAuthConfig covers the provider authorization handshake and the
// access-token refresh path.
type OAuthConfig interface {
	GetStateTTL() time.Duration
	GetStateSweepInterval() time.Duration
	GetStateLength() int
	GetTokenCacheTTL() time.Duration
	GetTokenExpiryMargin() time.Duration
	GetClientCacheTTL() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetStateTTL() time.Duration {
	return getDuration("OAUTH_STATE_TTL", 10*time.Minute)
}

func (OAuth) GetStateSweepInterval() time.Duration {
	return getDuration("OAUTH_STATE_SWEEP_INTERVAL", 5*time.Minute)
}

func (OAuth) GetStateLength() int {
	return 32 // 32 bytes = 256 bits
}

func (OAuth) GetTokenCacheTTL() time.Duration {
	return getDuration("TOKEN_CACHE_TTL", 5*time.Minute)
}

func (OAuth) GetTokenExpiryMargin() time.Duration {
	return getDuration("TOKEN_EXPIRY_MARGIN", 30*time.Second)
}

func (OAuth) GetClientCacheTTL() time.Duration {
	return getDuration("CLIENT_CACHE_TTL", 30*time.Minute)
}
