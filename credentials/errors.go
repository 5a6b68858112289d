package credentials

import (
	"fmt"

	"github.com/jrsteele09/kay-gateway/connections"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

// CredentialError reports that a connection cannot yield usable secrets.
// It always matches apperrors.ErrNoUsableCredential, so callers can tell a
// reconnect-required failure apart from a provider outage.
type CredentialError struct {
	Service connections.ServiceName
	Reason  string
	Err     error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no usable %s credential: %s: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("no usable %s credential: %s", e.Service, e.Reason)
}

func (e *CredentialError) Unwrap() []error {
	if e.Err != nil {
		return []error{apperrors.ErrNoUsableCredential, e.Err}
	}
	return []error{apperrors.ErrNoUsableCredential}
}
