// Package credentials derives the secret material downstream tool clients
// need from stored connections. It only reads connections.
package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/jrsteele09/kay-gateway/connections"
)

// Secrets maps secret names to values.
type Secrets map[string]string

const (
	KeyAccessToken = "access_token"
	KeyEmail       = "email"
	KeyAPIToken    = "api_token"
	KeyUsername    = "username"
	KeyCloudID     = "cloud_id"
	KeySiteURL     = "site_url"
	KeyToken       = "token"
)

var (
	errMissingSeparator = errors.New("missing ':' separator")
	errEmptyPart        = errors.New("empty identity or secret")
)

// Transform turns one connection into secrets.
type Transform interface {
	Apply(ctx context.Context, conn *connections.Connection) (Secrets, error)
}

// TokenSource yields a live access token for a connection. A non-empty
// cacheKey lets the source reuse a bundle it resolved for the same caller.
type TokenSource interface {
	AccessToken(ctx context.Context, cacheKey string, conn *connections.Connection) (string, error)
}

type cacheKeyCtx struct{}

// WithCacheKey scopes token caching to a caller, usually its bearer token.
func WithCacheKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, cacheKeyCtx{}, key)
}

// CacheKeyFrom returns the key set by WithCacheKey, or "".
func CacheKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(cacheKeyCtx{}).(string)
	return key
}

// BasicAuthTransform decodes an access token stored as base64(identity:secret).
type BasicAuthTransform struct {
	IdentityKey string
	SecretKey   string
}

func (t BasicAuthTransform) Apply(_ context.Context, conn *connections.Connection) (Secrets, error) {
	identity, secret, err := DecodeBasic(conn.Credentials.AccessToken)
	if err != nil {
		return nil, &CredentialError{Service: conn.ServiceName, Reason: "malformed basic credential", Err: err}
	}
	secrets := Secrets{t.IdentityKey: identity, t.SecretKey: secret}
	if md, ok := conn.Metadata.(*connections.BitbucketMetadata); ok && md.Username != "" {
		secrets[KeyUsername] = md.Username
	}
	return secrets, nil
}

// BearerTransform emits a refreshed OAuth access token.
type BearerTransform struct {
	Tokens TokenSource
}

// Apply passes refresh failures through unchanged.
func (t BearerTransform) Apply(ctx context.Context, conn *connections.Connection) (Secrets, error) {
	token, err := t.Tokens.AccessToken(ctx, CacheKeyFrom(ctx), conn)
	if err != nil {
		return nil, err
	}
	secrets := Secrets{KeyAccessToken: token}
	if md, ok := conn.Metadata.(*connections.AtlassianMetadata); ok && len(md.Resources) > 0 {
		secrets[KeyCloudID] = md.Resources[0].ID
		secrets[KeySiteURL] = md.Resources[0].URL
	}
	return secrets, nil
}

// StaticBearerTransform emits the stored token as-is.
type StaticBearerTransform struct {
	Key string
}

func (t StaticBearerTransform) Apply(_ context.Context, conn *connections.Connection) (Secrets, error) {
	if conn.Credentials.AccessToken == "" {
		return nil, &CredentialError{Service: conn.ServiceName, Reason: "empty token"}
	}
	return Secrets{t.Key: conn.Credentials.AccessToken}, nil
}

// DefaultTransforms wires the transform for every known service.
func DefaultTransforms(tokens TokenSource) map[connections.ServiceName]Transform {
	bearer := BearerTransform{Tokens: tokens}
	return map[connections.ServiceName]Transform{
		connections.ServiceJira:       bearer,
		connections.ServiceConfluence: bearer,
		connections.ServiceBitbucket:  BasicAuthTransform{IdentityKey: KeyEmail, SecretKey: KeyAPIToken},
		connections.ServiceKYG:        StaticBearerTransform{Key: KeyToken},
	}
}

// DecodeBasic splits base64(identity:secret) at the first separator.
func DecodeBasic(blob string) (identity, secret string, err error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", "", err
	}
	identity, secret, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", errMissingSeparator
	}
	if identity == "" || secret == "" {
		return "", "", errEmptyPart
	}
	return identity, secret, nil
}
