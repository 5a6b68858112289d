package kyg_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/providers/kyg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) GetAtlassianClientID() string      { return "" }
func (c testConfig) GetAtlassianClientSecret() string  { return "" }
func (c testConfig) GetAtlassianAuthURL() string       { return "" }
func (c testConfig) GetAtlassianTokenURL() string      { return "" }
func (c testConfig) GetAtlassianAPIURL() string        { return "" }
func (c testConfig) GetAtlassianAuthAPIURL() string    { return "" }
func (c testConfig) GetAtlassianIssuer() string        { return "" }
func (c testConfig) GetAtlassianScopes() []string      { return nil }
func (c testConfig) GetOAuthRedirectURL() string       { return "" }
func (c testConfig) GetBitbucketAPIURL() string        { return "" }
func (c testConfig) GetKYGBaseURL() string             { return c.baseURL }
func (c testConfig) GetProviderTimeout() time.Duration { return 5 * time.Second }

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body struct{ Email, Password string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"kyg-token","user":{"id":"7","email":"a@b.com","name":"Ada"}}`))
	}))
	defer srv.Close()

	client := kyg.New(testConfig{baseURL: srv.URL})
	ctx := context.Background()

	token, md, err := client.Login(ctx, "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "kyg-token", token)
	assert.Equal(t, "7", md.UserID)
	assert.Equal(t, "Ada", md.Name)

	_, _, err = client.Login(ctx, "a@b.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrVerificationFailed)
	assert.Equal(t, apperrors.CodeProviderError, apperrors.CodeOf(err))
	assert.NotContains(t, err.Error(), "wrong")

	_, _, err = client.Login(ctx, "a@b.com", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}
