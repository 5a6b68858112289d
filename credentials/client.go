package credentials

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/kay-gateway/connections"
)

// ServiceClient is an HTTP client that authenticates every request with
// the secrets currently resolved for one (session, service) pair.
type ServiceClient struct {
	DeviceSessionID string
	Service         connections.ServiceName
	HTTP            *http.Client
	transport       *http.Transport
}

func NewServiceClient(resolver *Resolver, deviceSessionID string, service connections.ServiceName, timeout time.Duration) *ServiceClient {
	base := http.DefaultTransport.(*http.Transport).Clone()
	return &ServiceClient{
		DeviceSessionID: deviceSessionID,
		Service:         service,
		HTTP: &http.Client{
			Timeout: timeout,
			Transport: &secretsTransport{
				resolver:        resolver,
				deviceSessionID: deviceSessionID,
				service:         service,
				base:            base,
			},
		},
		transport: base,
	}
}

// Close releases idle upstream connections.
func (c *ServiceClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

type secretsTransport struct {
	resolver        *Resolver
	deviceSessionID string
	service         connections.ServiceName
	base            http.RoundTripper
}

func (t *secretsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	secrets, err := t.resolver.Resolve(req.Context(), t.deviceSessionID, t.service)
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	switch {
	case secrets[KeyAccessToken] != "":
		out.Header.Set("Authorization", "Bearer "+secrets[KeyAccessToken])
	case secrets[KeyToken] != "":
		out.Header.Set("Authorization", "Bearer "+secrets[KeyToken])
	case secrets[KeyEmail] != "" && secrets[KeyAPIToken] != "":
		out.SetBasicAuth(secrets[KeyEmail], secrets[KeyAPIToken])
	default:
		return nil, &CredentialError{Service: t.service, Reason: fmt.Sprintf("no authorization secret among %d values", len(secrets))}
	}
	return t.base.RoundTrip(out)
}
