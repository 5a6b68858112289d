package sessions

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo
type InMemoryRepo struct {
	mu        sync.RWMutex
	devices   map[string]DeviceSession
	cli       map[string]CliSession
	byRefresh map[string]string // refresh token to cli session ID
	bySession map[string]string // session token to cli session ID
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		devices:   make(map[string]DeviceSession),
		cli:       make(map[string]CliSession),
		byRefresh: make(map[string]string),
		bySession: make(map[string]string),
	}
}

// DeviceSessionCount returns the number of stored device sessions.
func (r *InMemoryRepo) DeviceSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (r *InMemoryRepo) CreateDeviceSession(_ context.Context, s *DeviceSession) error {
	if s == nil || s.ID == "" {
		return errors.New("device session id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[s.ID]; exists {
		return errors.New("device session already exists")
	}
	r.devices[s.ID] = *s
	return nil
}

func (r *InMemoryRepo) GetDeviceSession(_ context.Context, id string) (*DeviceSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.devices[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &s, nil
}

func (r *InMemoryRepo) DeleteDeviceSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.devices, id)
	for cliID, s := range r.cli {
		if s.DeviceSessionID == id {
			r.removeLocked(cliID)
		}
	}
	return nil
}

func (r *InMemoryRepo) CreateCliSession(_ context.Context, s *CliSession) error {
	if s == nil || s.ID == "" || s.RefreshToken == "" {
		return errors.New("cli session requires an id and refresh token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRefresh[s.RefreshToken]; exists {
		return errors.New("refresh token already exists")
	}
	r.cli[s.ID] = *s
	r.byRefresh[s.RefreshToken] = s.ID
	r.bySession[s.SessionToken] = s.ID
	return nil
}

func (r *InMemoryRepo) GetCliSessionByRefreshToken(_ context.Context, refreshToken string) (*CliSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(r.byRefresh, refreshToken)
}

func (r *InMemoryRepo) GetCliSessionBySessionToken(_ context.Context, sessionToken string) (*CliSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(r.bySession, sessionToken)
}

func (r *InMemoryRepo) UpdateCliSession(_ context.Context, s *CliSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.cli[s.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(r.bySession, prev.SessionToken)
	if prev.RefreshToken != s.RefreshToken {
		delete(r.byRefresh, prev.RefreshToken)
	}
	r.cli[s.ID] = *s
	r.byRefresh[s.RefreshToken] = s.ID
	r.bySession[s.SessionToken] = s.ID
	return nil
}

func (r *InMemoryRepo) DeleteCliSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
	return nil
}

func (r *InMemoryRepo) DeleteCliSessionBySessionToken(_ context.Context, sessionToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySession[sessionToken]
	if !ok {
		return false, nil
	}
	r.removeLocked(id)
	return true, nil
}

func (r *InMemoryRepo) lookupLocked(index map[string]string, token string) (*CliSession, error) {
	id, ok := index[token]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	s := r.cli[id]
	return &s, nil
}

func (r *InMemoryRepo) removeLocked(id string) {
	s, ok := r.cli[id]
	if !ok {
		return
	}
	delete(r.byRefresh, s.RefreshToken)
	delete(r.bySession, s.SessionToken)
	delete(r.cli, id)
}
