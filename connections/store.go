package connections

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

// Store is the connection CRUD layer. Mirroring to a sibling service is the
// only cross-row side effect it performs.
type Store struct {
	repo   Repo
	policy MirrorPolicy
	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Store)

func WithMirrorPolicy(p MirrorPolicy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(repo Repo, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		policy: DefaultMirrorPolicy,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store upserts the connection for (deviceSessionID, service) and, when the
// service has a sibling without an independent credential, writes the same
// credentials to the sibling.
func (s *Store) Store(ctx context.Context, deviceSessionID string, service ServiceName, creds Credentials, md Metadata) (*Connection, error) {
	if deviceSessionID == "" {
		return nil, fmt.Errorf("%w: device session id is required", apperrors.ErrInvalidRequest)
	}
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("%w: access token is required", apperrors.ErrInvalidRequest)
	}
	if md == nil {
		md = EmptyMetadata(service)
	}
	if err := CheckMetadata(service, md); err != nil {
		return nil, fmt.Errorf("[Store Store] %w", err)
	}

	previous, err := s.lookup(ctx, deviceSessionID, service)
	if err != nil {
		return nil, err
	}

	stored, err := s.upsert(ctx, deviceSessionID, service, creds, md)
	if err != nil {
		return nil, err
	}

	sibling, ok := s.policy.Sibling(service)
	if !ok {
		return stored, nil
	}
	siblingConn, err := s.lookup(ctx, deviceSessionID, sibling)
	if err != nil {
		return nil, err
	}
	if !ShouldPropagateStore(previous, siblingConn) {
		s.logger.Debug().Str("service", string(service)).Str("sibling", string(sibling)).Msg("sibling has independent credential, not mirrored")
		return stored, nil
	}
	if _, err := s.upsert(ctx, deviceSessionID, sibling, creds, md); err != nil {
		return nil, fmt.Errorf("[Store Store] mirror to %s: %w", sibling, err)
	}
	s.logger.Debug().Str("service", string(service)).Str("sibling", string(sibling)).Msg("connection mirrored")
	return stored, nil
}

// Get returns the connection or errors.ErrNotConnected. It never refreshes.
func (s *Store) Get(ctx context.Context, deviceSessionID string, service ServiceName) (*Connection, error) {
	c, err := s.lookup(ctx, deviceSessionID, service)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotConnected, service)
	}
	return c, nil
}

// Delete removes the connection and reports whether a row was removed. A
// sibling holding identical token material is removed too.
func (s *Store) Delete(ctx context.Context, deviceSessionID string, service ServiceName) (bool, error) {
	source, err := s.lookup(ctx, deviceSessionID, service)
	if err != nil {
		return false, err
	}

	removed, err := s.repo.Delete(ctx, deviceSessionID, service)
	if err != nil {
		return false, fmt.Errorf("[Store Delete] %w", err)
	}

	sibling, ok := s.policy.Sibling(service)
	if !ok || source == nil {
		return removed, nil
	}
	siblingConn, err := s.lookup(ctx, deviceSessionID, sibling)
	if err != nil {
		return removed, err
	}
	if ShouldPropagateDelete(source, siblingConn) {
		if _, err := s.repo.Delete(ctx, deviceSessionID, sibling); err != nil {
			return removed, fmt.Errorf("[Store Delete] mirror %s: %w", sibling, err)
		}
		s.logger.Debug().Str("service", string(service)).Str("sibling", string(sibling)).Msg("mirrored connection removed")
	}
	return removed, nil
}

// DeleteAll removes every connection for a device session.
func (s *Store) DeleteAll(ctx context.Context, deviceSessionID string) (int64, error) {
	n, err := s.repo.DeleteBySession(ctx, deviceSessionID)
	if err != nil {
		return 0, fmt.Errorf("[Store DeleteAll] %w", err)
	}
	return n, nil
}

// GetStatus projects every known service for deviceSessionID. It is read-only.
func (s *Store) GetStatus(ctx context.Context, deviceSessionID string) (SessionStatus, error) {
	conns, err := s.repo.ListBySession(ctx, deviceSessionID)
	if err != nil {
		return nil, fmt.Errorf("[Store GetStatus] %w", err)
	}

	byService := make(map[ServiceName]*Connection, len(conns))
	for _, c := range conns {
		byService[c.ServiceName] = c
	}

	status := make(SessionStatus, len(knownServices))
	for _, service := range knownServices {
		c, ok := byService[service]
		if !ok {
			status[service] = ServiceStatus{Connected: false}
			continue
		}
		st := ServiceStatus{Connected: true}
		if c.Metadata != nil {
			st.User = c.Metadata.User()
			st.Metadata = EncodeMetadata(c.Metadata)
		}
		status[service] = st
	}
	return status, nil
}

func (s *Store) upsert(ctx context.Context, deviceSessionID string, service ServiceName, creds Credentials, md Metadata) (*Connection, error) {
	now := s.now()
	c := &Connection{
		ID:              uuid.New().String(),
		DeviceSessionID: deviceSessionID,
		ServiceName:     service,
		Credentials:     creds,
		Metadata:        md,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	stored, err := s.repo.Upsert(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("[Store upsert] %s: %w", service, err)
	}
	return stored, nil
}

func (s *Store) lookup(ctx context.Context, deviceSessionID string, service ServiceName) (*Connection, error) {
	c, err := s.repo.Get(ctx, deviceSessionID, service)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("[Store] get %s: %w", service, err)
	}
	return c, nil
}
