package credentials

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/internal/cache"
	"github.com/jrsteele09/kay-gateway/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ClientKey identifies a cached client.
type ClientKey struct {
	DeviceSessionID string
	Service         connections.ServiceName
}

func (k ClientKey) String() string {
	return k.DeviceSessionID + "|" + string(k.Service)
}

// ClientFactory creates a client holding an external resource.
type ClientFactory func(ctx context.Context) (io.Closer, error)

type ClientCacheOption func(*ClientCache)

func WithClientCacheLogger(logger zerolog.Logger) ClientCacheOption {
	return func(c *ClientCache) {
		c.logger = logger
	}
}

// ClientCache holds live provider clients per (session, service). Every
// removal path closes the client: expiry, Evict, replacement and Close.
// Clients are closed asynchronously except on Close, which waits for them.
type ClientCache struct {
	entries *cache.TTL[ClientKey, io.Closer]
	group   singleflight.Group
	logger  zerolog.Logger
}

func NewClientCache(ttl time.Duration, opts ...ClientCacheOption) *ClientCache {
	c := &ClientCache{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = cache.New[ClientKey, io.Closer](ttl, cache.WithOnEvict(c.closeClient))
	return c
}

// GetOrCreate returns the cached client for key or builds one with create.
// A failed create caches nothing.
func (c *ClientCache) GetOrCreate(ctx context.Context, key ClientKey, create ClientFactory) (io.Closer, error) {
	if client, ok := c.entries.Get(key); ok {
		return client, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if client, ok := c.entries.Get(key); ok {
			return client, nil
		}
		client, err := create(ctx)
		if err != nil {
			if client != nil {
				c.closeClient(key, client)
			}
			return nil, fmt.Errorf("[ClientCache GetOrCreate] failed to create %s client: %w", key.Service, err)
		}
		c.entries.Set(key, client)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(io.Closer), nil
}

// Evict closes and removes the client for key.
func (c *ClientCache) Evict(key ClientKey) bool {
	return c.entries.Delete(key)
}

// EvictSession closes and removes every client for a session.
func (c *ClientCache) EvictSession(deviceSessionID string) int {
	return c.entries.DeleteFunc(func(k ClientKey, _ io.Closer) bool {
		return k.DeviceSessionID == deviceSessionID
	})
}

func (c *ClientCache) Len() int {
	return c.entries.Len()
}

// Run closes clients as they expire until ctx is done.
func (c *ClientCache) Run(ctx context.Context) {
	c.entries.Run(ctx)
}

// Close closes every cached client.
func (c *ClientCache) Close() {
	c.entries.Close()
}

func (c *ClientCache) closeClient(key ClientKey, client io.Closer) {
	metrics.ClientCacheEvictions.Inc()
	if err := client.Close(); err != nil {
		c.logger.Warn().Err(err).
			Str("device_session_id", key.DeviceSessionID).
			Str("service", string(key.Service)).
			Msg("Failed to close cached client")
	}
}
