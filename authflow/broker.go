package authflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/kay-gateway/internal/config"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/internal/metrics"
)

// Broker issues and resolves OAuth state tokens.
type Broker struct {
	repo          Repo
	ttl           time.Duration
	sweepInterval time.Duration
	stateLength   int
	now           func() time.Time
	logger        zerolog.Logger
}

type Option func(*Broker)

func WithNowFunc(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

func NewBroker(repo Repo, cfg config.OAuthConfig, opts ...Option) *Broker {
	b := &Broker{
		repo:          repo,
		ttl:           cfg.GetStateTTL(),
		sweepInterval: cfg.GetStateSweepInterval(),
		stateLength:   cfg.GetStateLength(),
		now:           time.Now,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Create stores a new state. deviceSessionID and serviceName may be empty
// for flows that bind later.
func (b *Broker) Create(ctx context.Context, deviceSessionID, serviceName string) (string, error) {
	raw := make([]byte, b.stateLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("[Broker Create] failed to generate state: %w", err)
	}

	now := b.now()
	state := &State{
		State:           base64.RawURLEncoding.EncodeToString(raw),
		DeviceSessionID: deviceSessionID,
		ServiceName:     serviceName,
		CreatedAt:       now,
		ExpiresAt:       now.Add(b.ttl),
	}
	if err := b.repo.Insert(ctx, state); err != nil {
		return "", fmt.Errorf("[Broker Create] failed to store state: %w", err)
	}

	b.logger.Debug().Str("service", serviceName).Bool("bound", deviceSessionID != "").Msg("oauth state created")
	return state.State, nil
}

// Resolve returns the binding for a live state, or nil when the state is
// unknown or expired. Expired rows are deleted on read.
func (b *Broker) Resolve(ctx context.Context, state string) (*Binding, error) {
	s, err := b.live(ctx, state)
	if err != nil || s == nil {
		return nil, err
	}
	return &Binding{DeviceSessionID: s.DeviceSessionID, ServiceName: s.ServiceName}, nil
}

// Validate reports whether state is known and unexpired.
func (b *Broker) Validate(ctx context.Context, state string) (bool, error) {
	s, err := b.live(ctx, state)
	if err != nil {
		return false, err
	}
	return s != nil, nil
}

// Remove deletes state. Safe to call for unknown states.
func (b *Broker) Remove(ctx context.Context, state string) error {
	if err := b.repo.Delete(ctx, state); err != nil {
		return fmt.Errorf("[Broker Remove] %w", err)
	}
	return nil
}

// Sweep deletes every expired state.
func (b *Broker) Sweep(ctx context.Context) (int64, error) {
	n, err := b.repo.DeleteExpired(ctx, b.now())
	if err != nil {
		return 0, fmt.Errorf("[Broker Sweep] %w", err)
	}
	if n > 0 {
		metrics.OAuthStatesSwept.Add(float64(n))
		b.logger.Debug().Int64("count", n).Msg("expired oauth states removed")
	}
	return n, nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := b.Sweep(ctx); err != nil {
				b.logger.Error().Err(err).Msg("oauth state sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broker) live(ctx context.Context, state string) (*State, error) {
	if state == "" {
		return nil, nil
	}
	s, err := b.repo.Get(ctx, state)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("[Broker] failed to load state: %w", err)
	}
	if s.Expired(b.now()) {
		if err := b.repo.Delete(ctx, state); err != nil {
			b.logger.Warn().Err(err).Msg("failed to delete expired oauth state")
		}
		return nil, nil
	}
	return s, nil
}
