package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/internal/crypto"
)

var _ connections.Repo = (*ConnectionRepo)(nil)

// ConnectionRepo stores connections with access and refresh tokens sealed
// by the configured Sealer.
type ConnectionRepo struct {
	db     DB
	sealer *crypto.Sealer
}

func NewConnectionRepo(db DB, sealer *crypto.Sealer) *ConnectionRepo {
	return &ConnectionRepo{db: db, sealer: sealer}
}

const connectionColumns = `id, device_session_id, service_name, access_token, refresh_token, expires_at, metadata, status, created_at, updated_at`

func (r *ConnectionRepo) Upsert(ctx context.Context, c *connections.Connection) (*connections.Connection, error) {
	access, err := r.sealer.Seal(c.Credentials.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.sealer.Seal(c.Credentials.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}
	md, err := json.Marshal(connections.EncodeMetadata(c.Metadata))
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	out := *c
	err = r.db.QueryRow(ctx,
		`INSERT INTO connections (`+connectionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (device_session_id, service_name) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   expires_at = EXCLUDED.expires_at,
		   metadata = EXCLUDED.metadata,
		   status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		c.ID, c.DeviceSessionID, string(c.ServiceName), access, refresh, c.Credentials.ExpiresAt, md,
		string(c.Status), c.CreatedAt, c.UpdatedAt,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert connection %s: %w", c.ServiceName, err)
	}
	return &out, nil
}

func (r *ConnectionRepo) Get(ctx context.Context, deviceSessionID string, service connections.ServiceName) (*connections.Connection, error) {
	var row connectionRow
	err := r.db.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE device_session_id = $1 AND service_name = $2`,
		deviceSessionID, string(service),
	).Scan(row.dest()...)
	if err != nil {
		return nil, notFound(err, "get connection %s", service)
	}
	return row.toConnection(r.sealer)
}

func (r *ConnectionRepo) Delete(ctx context.Context, deviceSessionID string, service connections.ServiceName) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM connections WHERE device_session_id = $1 AND service_name = $2`,
		deviceSessionID, string(service),
	)
	if err != nil {
		return false, fmt.Errorf("delete connection %s: %w", service, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ConnectionRepo) ListBySession(ctx context.Context, deviceSessionID string) ([]*connections.Connection, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE device_session_id = $1 ORDER BY service_name`,
		deviceSessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	out := make([]*connections.Connection, 0)
	for rows.Next() {
		var row connectionRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		c, err := row.toConnection(r.sealer)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}

func (r *ConnectionRepo) DeleteBySession(ctx context.Context, deviceSessionID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM connections WHERE device_session_id = $1`, deviceSessionID)
	if err != nil {
		return 0, fmt.Errorf("delete connections: %w", err)
	}
	return tag.RowsAffected(), nil
}

type connectionRow struct {
	ID              string
	DeviceSessionID string
	ServiceName     string
	AccessToken     string
	RefreshToken    string
	ExpiresAt       *time.Time
	Metadata        []byte
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (row *connectionRow) dest() []any {
	return []any{
		&row.ID, &row.DeviceSessionID, &row.ServiceName, &row.AccessToken, &row.RefreshToken,
		&row.ExpiresAt, &row.Metadata, &row.Status, &row.CreatedAt, &row.UpdatedAt,
	}
}

func (row *connectionRow) toConnection(sealer *crypto.Sealer) (*connections.Connection, error) {
	service := connections.ServiceName(row.ServiceName)

	access, err := sealer.Open(row.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token for %s: %w", service, err)
	}
	refresh, err := sealer.Open(row.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token for %s: %w", service, err)
	}

	raw := map[string]any{}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &raw); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", service, err)
		}
	}
	md, err := connections.DecodeMetadata(service, raw)
	if err != nil {
		return nil, err
	}

	return &connections.Connection{
		ID:              row.ID,
		DeviceSessionID: row.DeviceSessionID,
		ServiceName:     service,
		Credentials: connections.Credentials{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    row.ExpiresAt,
		},
		Metadata:  md,
		Status:    connections.Status(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
