package authflow

import (
	"context"
	"time"
)

// Repo stores OAuth states. Get returns errors.ErrNotFound for unknown states
// and Delete is idempotent.
type Repo interface {
	Insert(ctx context.Context, state *State) error
	Get(ctx context.Context, state string) (*State, error)
	Delete(ctx context.Context, state string) error
	// DeleteExpired removes rows whose ExpiresAt is before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
