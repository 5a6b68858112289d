// Package atlassian implements the Atlassian OAuth 2.0 (3LO) flow shared by
// the jira and confluence services.
package atlassian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/internal/config"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/providers"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	ProviderName = "atlassian"
	Audience     = "api.atlassian.com"
)

// Identity is the /me response.
type Identity struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Picture   string `json:"picture"`
}

type resourceResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Scopes    []string `json:"scopes"`
	AvatarURL string   `json:"avatarUrl"`
}

type Option func(*Client)

// WithEndpoint overrides the configured authorization and token URLs.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(c *Client) {
		c.oauth.Endpoint = ep
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the Atlassian auth and API hosts.
type Client struct {
	oauth      *oauth2.Config
	apiURL     string
	authAPIURL string
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(cfg config.ProviderConfig, opts ...Option) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.GetAtlassianClientID(),
			ClientSecret: cfg.GetAtlassianClientSecret(),
			RedirectURL:  cfg.GetOAuthRedirectURL(),
			Scopes:       cfg.GetAtlassianScopes(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.GetAtlassianAuthURL(),
				TokenURL:  cfg.GetAtlassianTokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     cfg.GetAtlassianAPIURL(),
		authAPIURL: cfg.GetAtlassianAuthAPIURL(),
		httpClient: providers.NewHTTPClient(cfg.GetProviderTimeout()),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a Client, discovering endpoints when an OIDC issuer
// is configured.
func NewFromConfig(ctx context.Context, cfg config.ProviderConfig, opts ...Option) (*Client, error) {
	if issuer := cfg.GetAtlassianIssuer(); issuer != "" {
		ep, err := providers.DiscoverEndpoint(ctx, issuer)
		if err != nil {
			return nil, err
		}
		ep.AuthStyle = oauth2.AuthStyleInParams
		opts = append([]Option{WithEndpoint(ep)}, opts...)
	}
	return New(cfg, opts...), nil
}

// OAuth2Config exposes the client configuration for token refresh.
func (c *Client) OAuth2Config() *oauth2.Config {
	return c.oauth
}

func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// AuthCodeURL builds the consent URL for state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", Audience),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: authorization code is required", apperrors.ErrInvalidRequest)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, providers.TokenError(ProviderName, "exchange", err)
	}
	return tok, nil
}

func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := c.newRequest(c.apiURL+"/me", accessToken)
	if err != nil {
		return nil, err
	}
	var id Identity
	if err := providers.DoJSON(ctx, c.httpClient, req, &id, ProviderName, "identity", nil); err != nil {
		return nil, err
	}
	return &id, nil
}

func (c *Client) FetchResources(ctx context.Context, accessToken string) ([]connections.Resource, error) {
	req, err := c.newRequest(c.authAPIURL+"/oauth/token/accessible-resources", accessToken)
	if err != nil {
		return nil, err
	}
	var raw []resourceResponse
	if err := providers.DoJSON(ctx, c.httpClient, req, &raw, ProviderName, "resources", nil); err != nil {
		return nil, err
	}
	resources := make([]connections.Resource, 0, len(raw))
	for _, r := range raw {
		resources = append(resources, connections.Resource{
			ID:        r.ID,
			Name:      r.Name,
			URL:       r.URL,
			Scopes:    r.Scopes,
			AvatarURL: r.AvatarURL,
		})
	}
	return resources, nil
}

// Connect completes an authorization: exchange, identity and resources.
func (c *Client) Connect(ctx context.Context, code string) (connections.Credentials, *connections.AtlassianMetadata, error) {
	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return connections.Credentials{}, nil, err
	}

	identity, err := c.FetchIdentity(ctx, tok.AccessToken)
	if err != nil {
		return connections.Credentials{}, nil, err
	}

	resources, err := c.FetchResources(ctx, tok.AccessToken)
	if err != nil {
		return connections.Credentials{}, nil, err
	}
	resources = MergeResources(resources)

	accountID, err := AccountID(identity)
	if err != nil {
		return connections.Credentials{}, nil, err
	}

	md := &connections.AtlassianMetadata{
		AccountID: accountID,
		UserData: connections.AtlassianUser{
			AccountID: identity.AccountID,
			Name:      identity.Name,
			Email:     identity.Email,
			Picture:   identity.Picture,
		},
		Resources: resources,
		Scopes:    grantedScopes(tok, resources),
	}

	c.logger.Debug().
		Str("account_id", accountID).
		Int("resources", len(resources)).
		Msg("Atlassian authorization completed")

	return CredentialsFromToken(tok), md, nil
}

// CredentialsFromToken maps an oauth2 token onto stored credentials.
func CredentialsFromToken(tok *oauth2.Token) connections.Credentials {
	creds := connections.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		creds.ExpiresAt = &exp
	}
	return creds
}

// MergeResources collapses duplicate resource ids. The first occurrence
// keeps its position and receives the union of all scopes seen for its id.
func MergeResources(resources []connections.Resource) []connections.Resource {
	index := make(map[string]int, len(resources))
	merged := make([]connections.Resource, 0, len(resources))
	for _, r := range resources {
		i, ok := index[r.ID]
		if !ok {
			index[r.ID] = len(merged)
			r.Scopes = unionScopes(nil, r.Scopes)
			merged = append(merged, r)
			continue
		}
		merged[i].Scopes = unionScopes(merged[i].Scopes, r.Scopes)
	}
	return merged
}

// AccountID returns the provider account id, or a stable hash of the
// lowercased email when the provider omits one.
func AccountID(identity *Identity) (string, error) {
	if identity.AccountID != "" {
		return identity.AccountID, nil
	}
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		return "", &providers.ProviderError{Provider: ProviderName, Op: "identity", Message: "identity has neither account_id nor email"}
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:]), nil
}

func grantedScopes(tok *oauth2.Token, resources []connections.Resource) []string {
	var scopes []string
	if s, ok := tok.Extra("scope").(string); ok {
		scopes = unionScopes(scopes, strings.Fields(s))
	}
	for _, r := range resources {
		scopes = unionScopes(scopes, r.Scopes)
	}
	return scopes
}

func unionScopes(into, add []string) []string {
	seen := make(map[string]struct{}, len(into))
	for _, s := range into {
		seen[s] = struct{}{}
	}
	out := append([]string{}, into...)
	for _, s := range add {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (c *Client) newRequest(url, accessToken string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("[Atlassian] failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return req, nil
}
