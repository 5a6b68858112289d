package refresh

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Exchanger trades a provider refresh token for a new token set.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuth2Exchanger refreshes through an oauth2.Config token endpoint.
type OAuth2Exchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func NewOAuth2Exchanger(cfg *oauth2.Config, httpClient *http.Client) *OAuth2Exchanger {
	return &OAuth2Exchanger{config: cfg, httpClient: httpClient}
}

func (e *OAuth2Exchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}
	// An already expired token forces the source to hit the token endpoint.
	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	return e.config.TokenSource(ctx, stale).Token()
}
