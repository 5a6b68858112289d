package connections

import "context"

// Repo persists connections with upsert semantics on
// (DeviceSessionID, ServiceName). Get returns errors.ErrNotFound for missing rows.
type Repo interface {
	// Upsert inserts or overwrites the row for the pair, keeping the existing
	// ID and CreatedAt, and returns the stored row.
	Upsert(ctx context.Context, c *Connection) (*Connection, error)
	Get(ctx context.Context, deviceSessionID string, service ServiceName) (*Connection, error)
	Delete(ctx context.Context, deviceSessionID string, service ServiceName) (bool, error)
	ListBySession(ctx context.Context, deviceSessionID string) ([]*Connection, error)
	DeleteBySession(ctx context.Context, deviceSessionID string) (int64, error)
}
