// Package connect orchestrates the provider connect flows on top of the
// session, state and connection components.
package connect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/kay-gateway/authflow"
	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/credentials"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/providers"
	"github.com/jrsteele09/kay-gateway/providers/bitbucket"
	"github.com/jrsteele09/kay-gateway/sessions"
	"github.com/rs/zerolog"
)

// OAuthProvider runs the Atlassian authorization code flow.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Connect(ctx context.Context, code string) (connections.Credentials, *connections.AtlassianMetadata, error)
}

// CredentialVerifier checks an email and API token with the provider.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, apiToken string) (*connections.BitbucketMetadata, error)
}

// LoginProvider exchanges email and password for a provider token.
type LoginProvider interface {
	Login(ctx context.Context, email, password string) (string, *connections.KYGMetadata, error)
}

// DeviceSessions is the part of sessions.Manager used by connect flows.
type DeviceSessions interface {
	EnsureDeviceSession(ctx context.Context, id string) (*sessions.DeviceSession, bool, error)
	IssueCliSession(ctx context.Context, deviceSessionID, deviceInfo string) (*sessions.Tokens, error)
	DeleteDeviceSession(ctx context.Context, id string) error
}

// TokenCache drops cached credential bundles for a session.
type TokenCache interface {
	Invalidate(deviceSessionID string) int
}

// Dependencies collects the collaborators of a Service. Clients, Tokens,
// Resolver and ProbeURLs are optional.
type Dependencies struct {
	Sessions    DeviceSessions
	Broker      *authflow.Broker
	Connections *connections.Store
	Atlassian   OAuthProvider
	Bitbucket   CredentialVerifier
	KYG         LoginProvider
	Clients     *credentials.ClientCache
	Tokens      TokenCache
	Resolver    *credentials.Resolver
	ProbeURLs   map[connections.ServiceName]string
	Timeout     time.Duration
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

type Service struct {
	deps   Dependencies
	logger zerolog.Logger
}

func NewService(deps Dependencies, opts ...Option) *Service {
	if deps.Timeout == 0 {
		deps.Timeout = 15 * time.Second
	}
	s := &Service{deps: deps, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request asks to connect one service. Email and Password carry the static
// credential for bitbucket (API token) and kyg (account password).
type Request struct {
	Service         connections.ServiceName
	DeviceSessionID string
	Email           string
	Password        string
}

// Result is either a completed connection or a pending authorization.
type Result struct {
	Service          connections.ServiceName
	DeviceSessionID  string
	Connected        bool
	AuthorizationURL string
	State            string
	SessionReset     bool
}

// Completion describes a finished OAuth callback. Tokens is set only when the
// callback created the device session, which is the only way the caller can
// reach it.
type Completion struct {
	DeviceSessionID string
	Service         connections.ServiceName
	Connection      *connections.Connection
	Tokens          *sessions.Tokens
}

// legacyDeviceInfo labels CLI sessions issued by the unbound login flow.
const legacyDeviceInfo = "oauth-login"

// Connect starts or performs the connect flow for req.Service. An unknown
// DeviceSessionID is replaced by a new session and reported via SessionReset.
// Static credentials are checked before any session is created, so a failed
// connect never leaves a new device session behind.
func (s *Service) Connect(ctx context.Context, req Request) (*Result, error) {
	switch {
	case req.Service.IsAtlassian():
		return s.connectOAuth(ctx, req)
	case req.Service == connections.ServiceBitbucket:
		md, err := s.verifyBitbucket(ctx, req)
		if err != nil {
			return nil, err
		}
		creds := connections.Credentials{AccessToken: bitbucket.EncodeBasicCredential(req.Email, req.Password)}
		return s.storeStatic(ctx, req, creds, md)
	case req.Service == connections.ServiceKYG:
		token, md, err := s.deps.KYG.Login(ctx, req.Email, req.Password)
		if err != nil {
			return nil, err
		}
		return s.storeStatic(ctx, req, connections.Credentials{AccessToken: token}, md)
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownService, req.Service)
	}
}

func (s *Service) connectOAuth(ctx context.Context, req Request) (*Result, error) {
	session, reset, err := s.deps.Sessions.EnsureDeviceSession(ctx, req.DeviceSessionID)
	if err != nil {
		return nil, fmt.Errorf("[Service Connect] %w", err)
	}
	state, err := s.deps.Broker.Create(ctx, session.ID, string(req.Service))
	if err != nil {
		return nil, err
	}
	return &Result{
		Service:          req.Service,
		DeviceSessionID:  session.ID,
		SessionReset:     reset,
		State:            state,
		AuthorizationURL: s.deps.Atlassian.AuthCodeURL(state),
	}, nil
}

// verifyBitbucket checks the API token. A provider rejection removes any
// connection previously stored under the supplied session.
func (s *Service) verifyBitbucket(ctx context.Context, req Request) (*connections.BitbucketMetadata, error) {
	md, err := s.deps.Bitbucket.Verify(ctx, req.Email, req.Password)
	if err == nil {
		return md, nil
	}
	if req.DeviceSessionID != "" && errors.Is(err, apperrors.ErrProvider) {
		removed, delErr := s.deps.Connections.Delete(ctx, req.DeviceSessionID, connections.ServiceBitbucket)
		if delErr != nil {
			return nil, errors.Join(err, delErr)
		}
		if removed {
			s.logger.Info().Str("device_session_id", req.DeviceSessionID).Msg("removed bitbucket connection after failed verification")
		}
		s.evict(req.DeviceSessionID, connections.ServiceBitbucket)
	}
	return nil, err
}

// storeStatic saves a verified static credential, creating the device
// session when needed.
func (s *Service) storeStatic(ctx context.Context, req Request, creds connections.Credentials, md connections.Metadata) (*Result, error) {
	session, reset, err := s.deps.Sessions.EnsureDeviceSession(ctx, req.DeviceSessionID)
	if err != nil {
		return nil, fmt.Errorf("[Service Connect] %w", err)
	}
	if _, err := s.deps.Connections.Store(ctx, session.ID, req.Service, creds, md); err != nil {
		return nil, err
	}
	s.evict(session.ID, req.Service)
	return &Result{
		Service:         req.Service,
		DeviceSessionID: session.ID,
		Connected:       true,
		SessionReset:    reset,
	}, nil
}

// BeginLogin starts the legacy flow whose state is bound to a session only
// when the callback arrives.
func (s *Service) BeginLogin(ctx context.Context, service connections.ServiceName) (*Result, error) {
	if !service.IsAtlassian() {
		return nil, fmt.Errorf("%w: %s has no authorization flow", apperrors.ErrInvalidRequest, service)
	}
	state, err := s.deps.Broker.Create(ctx, "", string(service))
	if err != nil {
		return nil, err
	}
	return &Result{
		Service:          service,
		State:            state,
		AuthorizationURL: s.deps.Atlassian.AuthCodeURL(state),
	}, nil
}

// CompleteOAuth finishes an authorization. The state is consumed before the
// code exchange, so a replayed callback fails even if the exchange did not.
func (s *Service) CompleteOAuth(ctx context.Context, code, state, serviceHint string) (*Completion, error) {
	if state == "" {
		return nil, fmt.Errorf("%w: state is required", apperrors.ErrInvalidRequest)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", apperrors.ErrInvalidRequest)
	}

	binding, err := s.deps.Broker.Resolve(ctx, state)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, apperrors.ErrInvalidState
	}

	service, err := s.callbackService(binding, serviceHint)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Broker.Remove(ctx, state); err != nil {
		return nil, err
	}

	creds, md, err := s.deps.Atlassian.Connect(ctx, code)
	if err != nil {
		return nil, err
	}

	// An unbound state is claimed here: the device session is created only
	// once the exchange succeeded, and a CLI session is issued so the
	// caller can reach it.
	var tokens *sessions.Tokens
	deviceSessionID := binding.DeviceSessionID
	if deviceSessionID == "" {
		session, _, err := s.deps.Sessions.EnsureDeviceSession(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("[Service CompleteOAuth] %w", err)
		}
		deviceSessionID = session.ID
		if tokens, err = s.deps.Sessions.IssueCliSession(ctx, deviceSessionID, legacyDeviceInfo); err != nil {
			return nil, fmt.Errorf("[Service CompleteOAuth] %w", err)
		}
	}

	conn, err := s.deps.Connections.Store(ctx, deviceSessionID, service, creds, md)
	if err != nil {
		return nil, err
	}
	s.evict(deviceSessionID, service)
	if s.deps.Tokens != nil {
		s.deps.Tokens.Invalidate(deviceSessionID)
	}

	s.logger.Info().
		Str("device_session_id", deviceSessionID).
		Str("service", string(service)).
		Msg("oauth connection stored")

	return &Completion{DeviceSessionID: deviceSessionID, Service: service, Connection: conn, Tokens: tokens}, nil
}

func (s *Service) callbackService(binding *authflow.Binding, hint string) (connections.ServiceName, error) {
	if binding.ServiceName != "" {
		service, err := connections.ParseServiceName(binding.ServiceName)
		if err != nil {
			return "", err
		}
		if hint != "" && hint != binding.ServiceName {
			s.logger.Warn().Str("bound", binding.ServiceName).Str("hint", hint).Msg("callback service hint ignored")
		}
		return service, nil
	}
	if hint == "" {
		return connections.ServiceJira, nil
	}
	service, err := connections.ParseServiceName(hint)
	if err != nil {
		return "", err
	}
	if !service.IsAtlassian() {
		return "", fmt.Errorf("%w: %s has no authorization flow", apperrors.ErrInvalidRequest, service)
	}
	return service, nil
}

// Disconnect removes the connection, its mirror when applicable, and any
// cached clients for the pair.
func (s *Service) Disconnect(ctx context.Context, deviceSessionID string, service connections.ServiceName) (bool, error) {
	if deviceSessionID == "" {
		return false, fmt.Errorf("%w: session_id is required", apperrors.ErrInvalidRequest)
	}
	removed, err := s.deps.Connections.Delete(ctx, deviceSessionID, service)
	if err != nil {
		return false, err
	}
	s.evict(deviceSessionID, service)
	if s.deps.Tokens != nil {
		s.deps.Tokens.Invalidate(deviceSessionID)
	}
	return removed, nil
}

// Teardown deletes a device session with its connections and cached state.
func (s *Service) Teardown(ctx context.Context, deviceSessionID string) error {
	if _, err := s.deps.Connections.DeleteAll(ctx, deviceSessionID); err != nil {
		return err
	}
	if s.deps.Clients != nil {
		s.deps.Clients.EvictSession(deviceSessionID)
	}
	if s.deps.Tokens != nil {
		s.deps.Tokens.Invalidate(deviceSessionID)
	}
	return s.deps.Sessions.DeleteDeviceSession(ctx, deviceSessionID)
}

// Check calls the provider identity endpoint with the stored credential.
// A rejected credential yields ErrNoUsableCredential.
func (s *Service) Check(ctx context.Context, deviceSessionID string, service connections.ServiceName) error {
	probe, ok := s.deps.ProbeURLs[service]
	if !ok || s.deps.Resolver == nil || s.deps.Clients == nil {
		return fmt.Errorf("%w: %s cannot be checked", apperrors.ErrInvalidRequest, service)
	}

	key := credentials.ClientKey{DeviceSessionID: deviceSessionID, Service: service}
	c, err := s.deps.Clients.GetOrCreate(ctx, key, func(context.Context) (io.Closer, error) {
		return credentials.NewServiceClient(s.deps.Resolver, deviceSessionID, service, s.deps.Timeout), nil
	})
	if err != nil {
		return err
	}
	client := c.(*credentials.ServiceClient)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe, nil)
	if err != nil {
		return fmt.Errorf("[Service Check] failed to build request: %w", err)
	}
	err = providers.DoJSON(ctx, client.HTTP, req, nil, string(service), "check", nil)
	var pe *providers.ProviderError
	if errors.As(err, &pe) && (pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden) {
		return &credentials.CredentialError{Service: service, Reason: "rejected by provider", Err: err}
	}
	return err
}

func (s *Service) evict(deviceSessionID string, service connections.ServiceName) {
	if s.deps.Clients == nil {
		return
	}
	s.deps.Clients.Evict(credentials.ClientKey{DeviceSessionID: deviceSessionID, Service: service})
	if sibling, ok := connections.DefaultMirrorPolicy.Sibling(service); ok {
		s.deps.Clients.Evict(credentials.ClientKey{DeviceSessionID: deviceSessionID, Service: sibling})
	}
}
