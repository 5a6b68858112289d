// Package kyg performs the KYG email and password login.
package kyg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/internal/config"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/providers"
)

const ProviderName = "kyg"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL:    cfg.GetKYGBaseURL(),
		httpClient: providers.NewHTTPClient(cfg.GetProviderTimeout()),
	}
}

// Login exchanges email and password for a KYG session token.
func (c *Client) Login(ctx context.Context, email, password string) (string, *connections.KYGMetadata, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", nil, fmt.Errorf("%w: email and password are required", apperrors.ErrInvalidRequest)
	}

	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", nil, fmt.Errorf("[KYG Login] failed to encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("[KYG Login] failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp loginResponse
	if err := providers.DoJSON(ctx, c.httpClient, req, &resp, ProviderName, "login", apperrors.ErrVerificationFailed); err != nil {
		return "", nil, err
	}
	if resp.Token == "" {
		return "", nil, &providers.ProviderError{Provider: ProviderName, Op: "login", Message: "login response has no token"}
	}

	md := &connections.KYGMetadata{
		UserID: resp.User.ID,
		Email:  resp.User.Email,
		Name:   resp.User.Name,
	}
	if md.Email == "" {
		md.Email = email
	}
	return resp.Token, md, nil
}
