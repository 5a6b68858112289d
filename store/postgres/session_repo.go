package postgres

import (
	"context"
	"fmt"

	"github.com/jrsteele09/kay-gateway/sessions"
)

var _ sessions.Repo = (*SessionRepo)(nil)

type SessionRepo struct {
	db DB
}

func NewSessionRepo(db DB) *SessionRepo {
	return &SessionRepo{db: db}
}

const cliSessionColumns = `id, device_session_id, session_token, refresh_token, expires_at, device_info, created_at, updated_at`

func (r *SessionRepo) CreateDeviceSession(ctx context.Context, s *sessions.DeviceSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO device_sessions (id, created_at, updated_at) VALUES ($1, $2, $3)`,
		s.ID, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert device session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetDeviceSession(ctx context.Context, id string) (*sessions.DeviceSession, error) {
	var s sessions.DeviceSession
	err := r.db.QueryRow(ctx,
		`SELECT id, created_at, updated_at FROM device_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "get device session %s", id)
	}
	return &s, nil
}

// DeleteDeviceSession relies on ON DELETE CASCADE for CLI sessions and connections.
func (r *SessionRepo) DeleteDeviceSession(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM device_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete device session %s: %w", id, err)
	}
	return nil
}

func (r *SessionRepo) CreateCliSession(ctx context.Context, s *sessions.CliSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO cli_sessions (`+cliSessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.DeviceSessionID, s.SessionToken, s.RefreshToken, s.ExpiresAt, s.DeviceInfo, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert cli session: token already in use: %w", err)
		}
		return fmt.Errorf("insert cli session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetCliSessionByRefreshToken(ctx context.Context, refreshToken string) (*sessions.CliSession, error) {
	s, err := r.getCliSession(ctx, `refresh_token`, refreshToken)
	if err != nil {
		return nil, notFound(err, "get cli session by refresh token")
	}
	return s, nil
}

func (r *SessionRepo) GetCliSessionBySessionToken(ctx context.Context, sessionToken string) (*sessions.CliSession, error) {
	s, err := r.getCliSession(ctx, `session_token`, sessionToken)
	if err != nil {
		return nil, notFound(err, "get cli session by session token")
	}
	return s, nil
}

func (r *SessionRepo) UpdateCliSession(ctx context.Context, s *sessions.CliSession) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cli_sessions SET session_token = $2, refresh_token = $3, expires_at = $4, device_info = $5, updated_at = $6
		 WHERE id = $1`,
		s.ID, s.SessionToken, s.RefreshToken, s.ExpiresAt, s.DeviceInfo, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update cli session %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(errNoRows, "update cli session %s", s.ID)
	}
	return nil
}

func (r *SessionRepo) DeleteCliSession(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cli_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete cli session %s: %w", id, err)
	}
	return nil
}

func (r *SessionRepo) DeleteCliSessionBySessionToken(ctx context.Context, sessionToken string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM cli_sessions WHERE session_token = $1`, sessionToken)
	if err != nil {
		return false, fmt.Errorf("delete cli session by session token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepo) getCliSession(ctx context.Context, column, value string) (*sessions.CliSession, error) {
	var s sessions.CliSession
	err := r.db.QueryRow(ctx,
		`SELECT `+cliSessionColumns+` FROM cli_sessions WHERE `+column+` = $1`, value,
	).Scan(&s.ID, &s.DeviceSessionID, &s.SessionToken, &s.RefreshToken, &s.ExpiresAt, &s.DeviceInfo, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
