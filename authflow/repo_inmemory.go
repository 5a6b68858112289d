package authflow

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states: make(map[string]State),
	}
}

func (r *InMemoryRepo) Insert(_ context.Context, state *State) error {
	if state == nil || state.State == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.states[state.State]; exists {
		return errors.New("state already exists")
	}
	// Store a copy to prevent external modifications
	r.states[state.State] = *state
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, state string) (*State, error) {
	if state == "" {
		return nil, apperrors.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.states[state]
	if !exists {
		return nil, apperrors.ErrNotFound
	}
	return &s, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

func (r *InMemoryRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, s := range r.states {
		if s.ExpiresAt.Before(before) {
			delete(r.states, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored states.
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}
