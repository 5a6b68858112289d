package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/kay-gateway/connections"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

// ConnectionGetter reads stored connections.
type ConnectionGetter interface {
	Get(ctx context.Context, deviceSessionID string, service connections.ServiceName) (*connections.Connection, error)
}

type Resolver struct {
	connections ConnectionGetter
	transforms  map[connections.ServiceName]Transform
}

func NewResolver(conns ConnectionGetter, transforms map[connections.ServiceName]Transform) *Resolver {
	return &Resolver{connections: conns, transforms: transforms}
}

// Resolve returns the secrets for a session's connection to service.
func (r *Resolver) Resolve(ctx context.Context, deviceSessionID string, service connections.ServiceName) (Secrets, error) {
	transform, ok := r.transforms[service]
	if !ok {
		return nil, &CredentialError{Service: service, Reason: "no transform registered"}
	}

	conn, err := r.connections.Get(ctx, deviceSessionID, service)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotConnected) {
			return nil, &CredentialError{Service: service, Reason: "not connected", Err: err}
		}
		return nil, fmt.Errorf("[Resolver Resolve] failed to load connection: %w", err)
	}

	return transform.Apply(ctx, conn)
}
