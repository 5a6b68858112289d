package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/kay-gateway/authflow"
)

var _ authflow.Repo = (*StateRepo)(nil)

type StateRepo struct {
	db DB
}

func NewStateRepo(db DB) *StateRepo {
	return &StateRepo{db: db}
}

func (r *StateRepo) Insert(ctx context.Context, s *authflow.State) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO oauth_states (state, device_session_id, service_name, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.State, s.DeviceSessionID, s.ServiceName, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert oauth state: %w", err)
	}
	return nil
}

func (r *StateRepo) Get(ctx context.Context, state string) (*authflow.State, error) {
	var s authflow.State
	err := r.db.QueryRow(ctx,
		`SELECT state, device_session_id, service_name, created_at, expires_at
		 FROM oauth_states WHERE state = $1`, state,
	).Scan(&s.State, &s.DeviceSessionID, &s.ServiceName, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, notFound(err, "get oauth state")
	}
	return &s, nil
}

func (r *StateRepo) Delete(ctx context.Context, state string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM oauth_states WHERE state = $1`, state); err != nil {
		return fmt.Errorf("delete oauth state: %w", err)
	}
	return nil
}

func (r *StateRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM oauth_states WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired oauth states: %w", err)
	}
	return tag.RowsAffected(), nil
}
