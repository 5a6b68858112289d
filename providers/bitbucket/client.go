// Package bitbucket verifies Bitbucket API token credentials.
package bitbucket

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/internal/config"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/providers"
)

const ProviderName = "bitbucket"

type userResponse struct {
	UUID        string `json:"uuid"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AccountID   string `json:"account_id"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL:    cfg.GetBitbucketAPIURL(),
		httpClient: providers.NewHTTPClient(cfg.GetProviderTimeout()),
	}
}

// Verify checks email and apiToken against the identity endpoint. A
// rejected credential yields an error matching ErrVerificationFailed.
func (c *Client) Verify(ctx context.Context, email, apiToken string) (*connections.BitbucketMetadata, error) {
	if strings.TrimSpace(email) == "" || apiToken == "" {
		return nil, fmt.Errorf("%w: email and api token are required", apperrors.ErrInvalidRequest)
	}

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/2.0/user", nil)
	if err != nil {
		return nil, fmt.Errorf("[Bitbucket] failed to build request: %w", err)
	}
	req.SetBasicAuth(email, apiToken)

	var user userResponse
	if err := providers.DoJSON(ctx, c.httpClient, req, &user, ProviderName, "verify", apperrors.ErrVerificationFailed); err != nil {
		return nil, err
	}
	if user.UUID == "" {
		return nil, &providers.ProviderError{Provider: ProviderName, Op: "verify", Message: "identity response has no uuid", Err: apperrors.ErrVerificationFailed}
	}

	return &connections.BitbucketMetadata{
		UUID:        user.UUID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AccountID:   user.AccountID,
		Email:       email,
	}, nil
}

// EncodeBasicCredential packs email and token into the stored access token.
func EncodeBasicCredential(email, apiToken string) string {
	return base64.StdEncoding.EncodeToString([]byte(email + ":" + apiToken))
}
