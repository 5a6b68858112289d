package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/kay-gateway/internal/config"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/internal/metrics"
	"github.com/jrsteele09/kay-gateway/token/jwt"
	"github.com/jrsteele09/kay-gateway/token/keys"
)

// DeviceSessionPrefix starts every device session id.
const DeviceSessionPrefix = "kaysession"

// Manager issues, rotates and revokes CLI sessions bound to device sessions.
type Manager struct {
	repo       Repo
	issuer     *jwt.Issuer
	inspector  *jwt.Inspector
	refreshTTL time.Duration
	tokenLen   int
	now        func() time.Time
	logger     zerolog.Logger
}

type Option func(*Manager)

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

func NewManager(repo Repo, signer keys.Signer, cfg config.SecurityConfig, opts ...Option) *Manager {
	m := &Manager{
		repo:       repo,
		refreshTTL: cfg.GetCliRefreshTokenTTL(),
		tokenLen:   cfg.GetRefreshTokenLength(),
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.issuer = jwt.NewIssuer(signer, cfg.GetSessionIssuer(), cfg.GetSessionTokenTTL(), jwt.WithNowFunc(m.now))
	m.inspector = jwt.NewInspector(signer, cfg.GetSessionIssuer(), jwt.WithNowFunc(m.now))
	return m
}

// InitSession always creates a new device session and a new CLI session.
func (m *Manager) InitSession(ctx context.Context, deviceInfo string) (tokens *Tokens, err error) {
	defer func() { metrics.SessionOperationsTotal.WithLabelValues("init", metrics.Result(err)).Inc() }()

	device, err := m.createDeviceSession(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err = m.issueCliSession(ctx, device.ID, deviceInfo)
	if err != nil {
		return nil, fmt.Errorf("[Manager InitSession] %w", err)
	}
	m.logger.Info().Str("device_session_id", device.ID).Msg("session initialised")
	return tokens, nil
}

// IssueCliSession adds a CLI session to an existing device session. Unknown
// device sessions return errors.ErrNotFound.
func (m *Manager) IssueCliSession(ctx context.Context, deviceSessionID, deviceInfo string) (tokens *Tokens, err error) {
	defer func() { metrics.SessionOperationsTotal.WithLabelValues("issue", metrics.Result(err)).Inc() }()

	if _, err := m.repo.GetDeviceSession(ctx, deviceSessionID); err != nil {
		return nil, fmt.Errorf("[Manager IssueCliSession] %w", err)
	}
	tokens, err = m.issueCliSession(ctx, deviceSessionID, deviceInfo)
	if err != nil {
		return nil, fmt.Errorf("[Manager IssueCliSession] %w", err)
	}
	m.logger.Info().Str("device_session_id", deviceSessionID).Msg("cli session issued")
	return tokens, nil
}

func (m *Manager) issueCliSession(ctx context.Context, deviceSessionID, deviceInfo string) (*Tokens, error) {
	sessionToken, claims, err := m.issuer.Issue(deviceSessionID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := m.randomToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	cli := &CliSession{
		ID:              uuid.New().String(),
		DeviceSessionID: deviceSessionID,
		SessionToken:    sessionToken,
		RefreshToken:    refreshToken,
		ExpiresAt:       now.Add(m.refreshTTL),
		DeviceInfo:      deviceInfo,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.repo.CreateCliSession(ctx, cli); err != nil {
		return nil, fmt.Errorf("failed to store cli session: %w", err)
	}

	return &Tokens{
		DeviceSessionID:  deviceSessionID,
		SessionToken:     sessionToken,
		RefreshToken:     refreshToken,
		ExpiresAt:        cli.ExpiresAt,
		SessionExpiresAt: claims.ExpiresAt,
	}, nil
}

// Refresh issues a new session token for an unexpired refresh token. The row
// is updated in place and the refresh token is kept, so it may be reused
// until it expires. An expired refresh token deletes its row.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (tokens *Tokens, err error) {
	defer func() { metrics.SessionOperationsTotal.WithLabelValues("refresh", metrics.Result(err)).Inc() }()

	if refreshToken == "" {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	cli, err := m.repo.GetCliSessionByRefreshToken(ctx, refreshToken)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("[Manager Refresh] lookup failed: %w", err)
	}

	now := m.now()
	if !now.Before(cli.ExpiresAt) {
		if err := m.repo.DeleteCliSession(ctx, cli.ID); err != nil {
			return nil, fmt.Errorf("[Manager Refresh] failed to delete expired session: %w", err)
		}
		m.logger.Info().Str("device_session_id", cli.DeviceSessionID).Msg("expired refresh token removed")
		return nil, apperrors.ErrRefreshTokenExpired
	}

	sessionToken, claims, err := m.issuer.Issue(cli.DeviceSessionID)
	if err != nil {
		return nil, fmt.Errorf("[Manager Refresh] %w", err)
	}

	cli.SessionToken = sessionToken
	cli.ExpiresAt = now.Add(m.refreshTTL)
	cli.UpdatedAt = now
	if err := m.repo.UpdateCliSession(ctx, cli); err != nil {
		return nil, fmt.Errorf("[Manager Refresh] failed to update cli session: %w", err)
	}

	return &Tokens{
		DeviceSessionID:  cli.DeviceSessionID,
		SessionToken:     sessionToken,
		RefreshToken:     cli.RefreshToken,
		ExpiresAt:        cli.ExpiresAt,
		SessionExpiresAt: claims.ExpiresAt,
	}, nil
}

// Revoke deletes the CLI session for sessionToken. The signature must verify;
// an expired token is still accepted.
func (m *Manager) Revoke(ctx context.Context, sessionToken string) (err error) {
	defer func() { metrics.SessionOperationsTotal.WithLabelValues("revoke", metrics.Result(err)).Inc() }()

	claims, err := m.inspector.VerifySignature(sessionToken)
	if err != nil {
		return err
	}

	deleted, err := m.repo.DeleteCliSessionBySessionToken(ctx, sessionToken)
	if err != nil {
		return fmt.Errorf("[Manager Revoke] %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: session not found", apperrors.ErrInvalidToken)
	}

	m.logger.Info().Str("device_session_id", claims.DeviceSessionID).Msg("session revoked")
	return nil
}

// Verify checks the token signature and expiry only. Use Authenticate to
// also confirm the session has not been revoked.
func (m *Manager) Verify(sessionToken string) (*jwt.SessionClaims, error) {
	return m.inspector.Verify(sessionToken)
}

// Authenticate validates an Authorization header value and confirms the
// session row still exists.
func (m *Manager) Authenticate(ctx context.Context, authorizationHeader string) (*jwt.SessionClaims, error) {
	sessionToken, err := ParseBearer(authorizationHeader)
	if err != nil {
		return nil, err
	}

	claims, err := m.inspector.Verify(sessionToken)
	if err != nil {
		return nil, err
	}

	cli, err := m.repo.GetCliSessionBySessionToken(ctx, sessionToken)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: session revoked", apperrors.ErrInvalidToken)
		}
		return nil, fmt.Errorf("[Manager Authenticate] %w", err)
	}
	if cli.DeviceSessionID != claims.DeviceSessionID {
		return nil, fmt.Errorf("%w: device session mismatch", apperrors.ErrInvalidToken)
	}
	return claims, nil
}

// EnsureDeviceSession returns the device session for id, creating one when id
// is empty or unknown. reset is true when a non-empty id was not found.
func (m *Manager) EnsureDeviceSession(ctx context.Context, id string) (session *DeviceSession, reset bool, err error) {
	if id != "" {
		existing, err := m.repo.GetDeviceSession(ctx, id)
		if err == nil {
			return existing, false, nil
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, false, fmt.Errorf("[Manager EnsureDeviceSession] %w", err)
		}
		reset = true
		m.logger.Warn().Str("device_session_id", id).Msg("unknown device session, issuing a new one")
	}

	created, err := m.createDeviceSession(ctx)
	if err != nil {
		return nil, false, err
	}
	return created, reset, nil
}

// GetDeviceSession returns errors.ErrNotFound for unknown ids.
func (m *Manager) GetDeviceSession(ctx context.Context, id string) (*DeviceSession, error) {
	return m.repo.GetDeviceSession(ctx, id)
}

// DeleteDeviceSession tears down a device session and its CLI sessions.
func (m *Manager) DeleteDeviceSession(ctx context.Context, id string) error {
	if err := m.repo.DeleteDeviceSession(ctx, id); err != nil {
		return fmt.Errorf("[Manager DeleteDeviceSession] %w", err)
	}
	m.logger.Info().Str("device_session_id", id).Msg("device session deleted")
	return nil
}

func (m *Manager) createDeviceSession(ctx context.Context) (*DeviceSession, error) {
	suffix, err := randomHex(8)
	if err != nil {
		return nil, fmt.Errorf("[Manager createDeviceSession] %w", err)
	}
	now := m.now()
	device := &DeviceSession{
		ID:        fmt.Sprintf("%s_%d_%s", DeviceSessionPrefix, now.UnixMilli(), suffix),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.CreateDeviceSession(ctx, device); err != nil {
		return nil, fmt.Errorf("[Manager createDeviceSession] failed to store device session: %w", err)
	}
	return device, nil
}

func (m *Manager) randomToken() (string, error) {
	return randomHex(m.tokenLen)
}

// ParseBearer extracts the token from a "Bearer <token>" header value.
func ParseBearer(authorizationHeader string) (string, error) {
	if authorizationHeader == "" {
		return "", fmt.Errorf("%w: missing Authorization header", apperrors.ErrTokenMissing)
	}
	parts := strings.SplitN(authorizationHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("%w: invalid Authorization header format", apperrors.ErrTokenMissing)
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", fmt.Errorf("%w: empty token", apperrors.ErrTokenMissing)
	}
	return token, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
