package connections

import (
	"context"
	"errors"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

type connectionKey struct {
	deviceSessionID string
	service         ServiceName
}

// InMemoryRepo is a thread-safe in-memory implementation of Repo
type InMemoryRepo struct {
	mu    sync.RWMutex
	conns map[connectionKey]Connection
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		conns: make(map[connectionKey]Connection),
	}
}

func (r *InMemoryRepo) Upsert(_ context.Context, c *Connection) (*Connection, error) {
	if c == nil || c.DeviceSessionID == "" || c.ServiceName == "" {
		return nil, errors.New("connection requires a device session and service")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := connectionKey{c.DeviceSessionID, c.ServiceName}
	stored := copyConnection(c)
	if existing, ok := r.conns[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	}
	r.conns[key] = stored

	out := copyConnection(&stored)
	return &out, nil
}

func (r *InMemoryRepo) Get(_ context.Context, deviceSessionID string, service ServiceName) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connectionKey{deviceSessionID, service}]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := copyConnection(&c)
	return &out, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, deviceSessionID string, service ServiceName) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := connectionKey{deviceSessionID, service}
	if _, ok := r.conns[key]; !ok {
		return false, nil
	}
	delete(r.conns, key)
	return true, nil
}

func (r *InMemoryRepo) ListBySession(_ context.Context, deviceSessionID string) ([]*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0)
	for k, c := range r.conns {
		if k.deviceSessionID == deviceSessionID {
			cp := copyConnection(&c)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out, nil
}

func (r *InMemoryRepo) DeleteBySession(_ context.Context, deviceSessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k := range r.conns {
		if k.deviceSessionID == deviceSessionID {
			delete(r.conns, k)
			n++
		}
	}
	return n, nil
}

// copyConnection returns a copy that shares no mutable state with c.
func copyConnection(c *Connection) Connection {
	out := *c
	if c.Credentials.ExpiresAt != nil {
		exp := *c.Credentials.ExpiresAt
		out.Credentials.ExpiresAt = &exp
	}
	if c.Metadata != nil {
		md, err := DecodeMetadata(c.ServiceName, EncodeMetadata(c.Metadata))
		if err == nil {
			out.Metadata = md
		}
	}
	return out
}
