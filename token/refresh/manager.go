// Package refresh keeps OAuth access tokens for stored connections live.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/internal/cache"
	"github.com/jrsteele09/kay-gateway/internal/config"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/internal/metrics"
	"github.com/jrsteele09/kay-gateway/providers"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ConnectionStore is the part of connections.Store the manager needs.
type ConnectionStore interface {
	Get(ctx context.Context, deviceSessionID string, service connections.ServiceName) (*connections.Connection, error)
	Store(ctx context.Context, deviceSessionID string, service connections.ServiceName, creds connections.Credentials, md connections.Metadata) (*connections.Connection, error)
}

// Bundle is a resolved credential for one (session, service) pair.
type Bundle struct {
	DeviceSessionID string
	Service         connections.ServiceName
	AccessToken     string
	ExpiresAt       *time.Time
}

// defaultRefreshTimeout bounds one exchange when no timeout is configured.
const defaultRefreshTimeout = 15 * time.Second

type Option func(*Manager)

// WithRefreshTimeout bounds a shared exchange. The exchange outlives the
// caller that started it, so it cannot use that caller's deadline.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager refreshes expiring access tokens and caches resolved bundles.
// Concurrent refreshes of the same refresh token, including mirrored
// connections sharing it, are collapsed into one exchange.
type Manager struct {
	store      ConnectionStore
	exchangers map[connections.ServiceName]Exchanger
	margin     time.Duration
	timeout    time.Duration
	cache      *cache.TTL[string, *Bundle]
	group      singleflight.Group
	now        func() time.Time
	logger     zerolog.Logger
}

func NewManager(store ConnectionStore, exchangers map[connections.ServiceName]Exchanger, cfg config.OAuthConfig, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		exchangers: exchangers,
		margin:     cfg.GetTokenExpiryMargin(),
		timeout:    defaultRefreshTimeout,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = cache.New[string, *Bundle](cfg.GetTokenCacheTTL())
	return m
}

// Cache exposes the bundle cache so callers can run its cleanup loop.
func (m *Manager) Cache() *cache.TTL[string, *Bundle] {
	return m.cache
}

// GetLiveAccessToken returns conn's access token, refreshing it first when
// it expires within the configured margin.
func (m *Manager) GetLiveAccessToken(ctx context.Context, conn *connections.Connection) (string, error) {
	live, err := m.live(ctx, conn, false)
	if err != nil {
		return "", err
	}
	return live.Credentials.AccessToken, nil
}

// AccessToken is GetLiveAccessToken behind the bundle cache. cacheKey scopes
// the entry to a caller, usually the bearer session token; an empty key
// skips the cache.
func (m *Manager) AccessToken(ctx context.Context, cacheKey string, conn *connections.Connection) (string, error) {
	if conn == nil {
		return "", apperrors.ErrNotConnected
	}
	key := bundleKey(cacheKey, conn.DeviceSessionID, conn.ServiceName)
	if b, ok := m.cached(cacheKey, key); ok {
		return b.AccessToken, nil
	}

	live, err := m.live(ctx, conn, false)
	if err != nil {
		return "", err
	}
	return m.remember(cacheKey, key, conn.DeviceSessionID, conn.ServiceName, live).AccessToken, nil
}

// Resolve returns the bundle for a session and service. cacheKey scopes
// the cache entry to a caller, usually the bearer session token; an empty
// key or force skips the cache. force also refreshes OAuth tokens.
func (m *Manager) Resolve(ctx context.Context, cacheKey, deviceSessionID string, service connections.ServiceName, force bool) (*Bundle, error) {
	key := bundleKey(cacheKey, deviceSessionID, service)
	if !force {
		if b, ok := m.cached(cacheKey, key); ok {
			return b, nil
		}
	}

	conn, err := m.store.Get(ctx, deviceSessionID, service)
	if err != nil {
		return nil, err
	}

	live, err := m.live(ctx, conn, force)
	if err != nil {
		return nil, err
	}
	return m.remember(cacheKey, key, deviceSessionID, service, live), nil
}

func (m *Manager) cached(cacheKey, key string) (*Bundle, bool) {
	if cacheKey == "" {
		return nil, false
	}
	if b, ok := m.cache.Get(key); ok && !m.expiring(b.ExpiresAt) {
		metrics.TokenCacheTotal.WithLabelValues("hit").Inc()
		return b, true
	}
	metrics.TokenCacheTotal.WithLabelValues("miss").Inc()
	return nil, false
}

func (m *Manager) remember(cacheKey, key, deviceSessionID string, service connections.ServiceName, live *connections.Connection) *Bundle {
	b := &Bundle{
		DeviceSessionID: deviceSessionID,
		Service:         service,
		AccessToken:     live.Credentials.AccessToken,
		ExpiresAt:       live.Credentials.ExpiresAt,
	}
	if cacheKey != "" {
		m.cache.Set(key, b)
	}
	return b
}

// Invalidate drops every cached bundle for a session.
func (m *Manager) Invalidate(deviceSessionID string) int {
	return m.cache.DeleteFunc(func(_ string, b *Bundle) bool {
		return b.DeviceSessionID == deviceSessionID
	})
}

func (m *Manager) live(ctx context.Context, conn *connections.Connection, force bool) (*connections.Connection, error) {
	if conn == nil {
		return nil, apperrors.ErrNotConnected
	}
	if !force && !m.expiring(conn.Credentials.ExpiresAt) {
		return conn, nil
	}
	if _, ok := m.exchangers[conn.ServiceName]; !ok && force {
		// Services without an exchanger hold static credentials.
		return conn, nil
	}

	v, err, _ := m.group.Do(flightKey(conn), func() (any, error) {
		// Waiters share this exchange, so one caller cancelling must not fail the rest.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.refresh(rctx, conn, force)
	})
	if err != nil {
		return nil, err
	}
	return v.(*connections.Connection), nil
}

func (m *Manager) refresh(ctx context.Context, conn *connections.Connection, force bool) (*connections.Connection, error) {
	service := conn.ServiceName

	current, err := m.store.Get(ctx, conn.DeviceSessionID, service)
	if err != nil {
		return nil, fmt.Errorf("[Manager Refresh] failed to load connection: %w", err)
	}
	if !force && !m.expiring(current.Credentials.ExpiresAt) {
		// Refreshed by an earlier caller.
		return current, nil
	}

	exchanger, ok := m.exchangers[service]
	if !ok {
		metrics.TokenRefreshTotal.WithLabelValues(string(service), "error").Inc()
		return nil, fmt.Errorf("[Manager Refresh] %w: %s tokens cannot be refreshed", apperrors.ErrRefreshFailed, service)
	}
	if current.Credentials.RefreshToken == "" {
		metrics.TokenRefreshTotal.WithLabelValues(string(service), "error").Inc()
		return nil, fmt.Errorf("[Manager Refresh] %w: no refresh token stored for %s", apperrors.ErrRefreshFailed, service)
	}

	tok, err := exchanger.Refresh(ctx, current.Credentials.RefreshToken)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(string(service), "error").Inc()
		m.logger.Warn().Err(err).
			Str("device_session_id", conn.DeviceSessionID).
			Str("service", string(service)).
			Msg("Token refresh failed")
		return nil, fmt.Errorf("[Manager Refresh] %w: %w", apperrors.ErrRefreshFailed, providers.TokenError(string(service), "refresh", err))
	}

	creds := credentialsFromToken(tok, current.Credentials.RefreshToken)
	updated, err := m.store.Store(ctx, current.DeviceSessionID, service, creds, current.Metadata)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(string(service), "error").Inc()
		return nil, fmt.Errorf("[Manager Refresh] failed to persist refreshed token: %w", err)
	}

	old := current.Credentials.AccessToken
	m.cache.DeleteFunc(func(_ string, b *Bundle) bool {
		return b.AccessToken == old
	})

	metrics.TokenRefreshTotal.WithLabelValues(string(service), "ok").Inc()
	m.logger.Debug().
		Str("device_session_id", conn.DeviceSessionID).
		Str("service", string(service)).
		Msg("Access token refreshed")
	return updated, nil
}

func (m *Manager) expiring(expiresAt *time.Time) bool {
	return connections.Credentials{ExpiresAt: expiresAt}.ExpiresWithin(m.now(), m.margin)
}

func credentialsFromToken(tok *oauth2.Token, previousRefresh string) connections.Credentials {
	creds := connections.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = previousRefresh
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		creds.ExpiresAt = &exp
	}
	return creds
}

func bundleKey(cacheKey, deviceSessionID string, service connections.ServiceName) string {
	return cacheKey + "|" + deviceSessionID + "|" + string(service)
}

// flightKey groups refreshes by refresh token so mirrored services sharing
// one token never exchange it twice.
func flightKey(conn *connections.Connection) string {
	if rt := conn.Credentials.RefreshToken; rt != "" {
		return conn.DeviceSessionID + "|rt|" + rt
	}
	return conn.DeviceSessionID + "|" + string(conn.ServiceName)
}
