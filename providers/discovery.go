package providers

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DiscoverEndpoint resolves authorization and token endpoints from an
// issuer's OpenID configuration.
func DiscoverEndpoint(ctx context.Context, issuer string) (oauth2.Endpoint, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return oauth2.Endpoint{}, fmt.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
	}
	return provider.Endpoint(), nil
}
