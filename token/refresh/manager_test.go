package refresh_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/internal/config"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/token/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const deviceSessionID = "kaysession_1_abc"

type tokenEndpoint struct {
	calls atomic.Int32
	fail  atomic.Bool
	// gate, when set, holds every exchange until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := e.calls.Add(1)
	if e.gate != nil {
		e.entered <- struct{}{}
		select {
		case <-e.gate:
		case <-r.Context().Done():
			return
		}
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if e.fail.Load() || r.PostForm.Get("grant_type") != "refresh_token" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  fmt.Sprintf("access-%d", n+1),
		"refresh_token": fmt.Sprintf("refresh-%d", n+1),
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

type fixture struct {
	manager  *refresh.Manager
	store    *connections.Store
	endpoint *tokenEndpoint
}

func setupTestFixture(t *testing.T) *fixture {
	t.Helper()
	return setupTestFixtureWithEndpoint(t, &tokenEndpoint{})
}

func setupTestFixtureWithEndpoint(t *testing.T, endpoint *tokenEndpoint) *fixture {
	t.Helper()
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	exchanger := refresh.NewOAuth2Exchanger(&oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
	}, srv.Client())

	store := connections.NewStore(connections.NewInMemoryRepo())
	manager := refresh.NewManager(store, map[connections.ServiceName]refresh.Exchanger{
		connections.ServiceJira:       exchanger,
		connections.ServiceConfluence: exchanger,
	}, config.OAuth{})

	return &fixture{manager: manager, store: store, endpoint: endpoint}
}

func (f *fixture) connectJira(t *testing.T, expiresIn time.Duration) *connections.Connection {
	t.Helper()
	exp := time.Now().Add(expiresIn).UTC()
	conn, err := f.store.Store(context.Background(), deviceSessionID, connections.ServiceJira, connections.Credentials{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    &exp,
	}, &connections.AtlassianMetadata{AccountID: "acc"})
	require.NoError(t, err)
	return conn
}

func TestGetLiveAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("live token makes no exchange", func(t *testing.T) {
		f := setupTestFixture(t)
		conn := f.connectJira(t, time.Hour)

		token, err := f.manager.GetLiveAccessToken(ctx, conn)
		require.NoError(t, err)
		assert.Equal(t, "access-1", token)
		assert.Equal(t, int32(0), f.endpoint.calls.Load())
	})

	t.Run("expired token is refreshed once and persisted", func(t *testing.T) {
		f := setupTestFixture(t)
		conn := f.connectJira(t, -time.Minute)

		token, err := f.manager.GetLiveAccessToken(ctx, conn)
		require.NoError(t, err)
		assert.Equal(t, "access-2", token)
		assert.Equal(t, int32(1), f.endpoint.calls.Load())

		stored, err := f.store.Get(ctx, deviceSessionID, connections.ServiceJira)
		require.NoError(t, err)
		assert.Equal(t, "access-2", stored.Credentials.AccessToken)
		assert.Equal(t, "refresh-2", stored.Credentials.RefreshToken)
		require.NotNil(t, stored.Credentials.ExpiresAt)
		assert.True(t, stored.Credentials.ExpiresAt.After(*conn.Credentials.ExpiresAt))

		mirror, err := f.store.Get(ctx, deviceSessionID, connections.ServiceConfluence)
		require.NoError(t, err)
		assert.Equal(t, "access-2", mirror.Credentials.AccessToken)
	})

	t.Run("token inside the margin is refreshed", func(t *testing.T) {
		f := setupTestFixture(t)
		conn := f.connectJira(t, 10*time.Second)

		token, err := f.manager.GetLiveAccessToken(ctx, conn)
		require.NoError(t, err)
		assert.Equal(t, "access-2", token)
	})

	t.Run("concurrent callers share one exchange", func(t *testing.T) {
		f := setupTestFixture(t)
		conn := f.connectJira(t, -time.Minute)

		var wg sync.WaitGroup
		tokens := make([]string, 8)
		for i := range tokens {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tok, err := f.manager.GetLiveAccessToken(ctx, conn)
				assert.NoError(t, err)
				tokens[i] = tok
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), f.endpoint.calls.Load())
		for _, tok := range tokens {
			assert.Equal(t, "access-2", tok)
		}
	})

	t.Run("cancelled caller does not fail the shared exchange", func(t *testing.T) {
		f := setupTestFixtureWithEndpoint(t, &tokenEndpoint{
			gate:    make(chan struct{}),
			entered: make(chan struct{}, 1),
		})
		conn := f.connectJira(t, -time.Minute)

		firstCtx, cancel := context.WithCancel(ctx)
		firstDone := make(chan struct{})
		go func() {
			defer close(firstDone)
			_, _ = f.manager.GetLiveAccessToken(firstCtx, conn)
		}()
		<-f.endpoint.entered

		type result struct {
			token string
			err   error
		}
		second := make(chan result, 1)
		go func() {
			tok, err := f.manager.GetLiveAccessToken(ctx, conn)
			second <- result{tok, err}
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()
		close(f.endpoint.gate)

		res := <-second
		<-firstDone
		require.NoError(t, res.err)
		assert.Equal(t, "access-2", res.token)
		assert.Equal(t, int32(1), f.endpoint.calls.Load())
	})

	t.Run("mirrored services share one exchange", func(t *testing.T) {
		f := setupTestFixture(t)
		jira := f.connectJira(t, -time.Minute)
		confluence, err := f.store.Get(ctx, deviceSessionID, connections.ServiceConfluence)
		require.NoError(t, err)
		require.Equal(t, jira.Credentials.RefreshToken, confluence.Credentials.RefreshToken)

		var wg sync.WaitGroup
		tokens := make([]string, 6)
		for i := range tokens {
			conn := jira
			if i%2 == 1 {
				conn = confluence
			}
			wg.Add(1)
			go func(i int, conn *connections.Connection) {
				defer wg.Done()
				tok, err := f.manager.GetLiveAccessToken(ctx, conn)
				assert.NoError(t, err)
				tokens[i] = tok
			}(i, conn)
		}
		wg.Wait()

		assert.Equal(t, int32(1), f.endpoint.calls.Load())
		for _, tok := range tokens {
			assert.Equal(t, "access-2", tok)
		}
	})

	t.Run("failure requires reauthentication and keeps the connection", func(t *testing.T) {
		f := setupTestFixture(t)
		conn := f.connectJira(t, -time.Minute)
		f.endpoint.fail.Store(true)

		_, err := f.manager.GetLiveAccessToken(ctx, conn)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrRefreshFailed)
		assert.Equal(t, apperrors.CodeReauthRequired, apperrors.CodeOf(err))
		assert.Contains(t, err.Error(), "refresh token revoked")
		assert.NotContains(t, err.Error(), "refresh-1")

		stored, err := f.store.Get(ctx, deviceSessionID, connections.ServiceJira)
		require.NoError(t, err)
		assert.Equal(t, "access-1", stored.Credentials.AccessToken)
	})

	t.Run("service without exchanger cannot refresh", func(t *testing.T) {
		f := setupTestFixture(t)
		exp := time.Now().Add(-time.Minute)
		conn, err := f.store.Store(ctx, deviceSessionID, connections.ServiceKYG, connections.Credentials{
			AccessToken: "kyg", ExpiresAt: &exp,
		}, &connections.KYGMetadata{})
		require.NoError(t, err)

		_, err = f.manager.GetLiveAccessToken(ctx, conn)
		assert.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	})

	t.Run("nil connection", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.manager.GetLiveAccessToken(ctx, nil)
		assert.ErrorIs(t, err, apperrors.ErrNotConnected)
	})
}

func TestAccessTokenUsesBundleCache(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	conn := f.connectJira(t, time.Hour)

	first, err := f.manager.AccessToken(ctx, "bearer-1", conn)
	require.NoError(t, err)
	assert.Equal(t, "access-1", first)
	assert.Equal(t, 1, f.manager.Cache().Len())

	changed := *conn
	changed.Credentials.AccessToken = "changed"
	cached, err := f.manager.AccessToken(ctx, "bearer-1", &changed)
	require.NoError(t, err)
	assert.Equal(t, "access-1", cached)

	uncached, err := f.manager.AccessToken(ctx, "", &changed)
	require.NoError(t, err)
	assert.Equal(t, "changed", uncached)

	assert.Equal(t, 1, f.manager.Invalidate(deviceSessionID))
	fresh, err := f.manager.AccessToken(ctx, "bearer-1", &changed)
	require.NoError(t, err)
	assert.Equal(t, "changed", fresh)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("cached bundle is reused", func(t *testing.T) {
		f := setupTestFixture(t)
		f.connectJira(t, time.Hour)

		first, err := f.manager.Resolve(ctx, "session-token", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		assert.Equal(t, "access-1", first.AccessToken)

		// A change behind the cache is not observed until the entry is bypassed.
		exp := time.Now().Add(time.Hour)
		_, err = f.store.Store(ctx, deviceSessionID, connections.ServiceJira, connections.Credentials{
			AccessToken: "manual", RefreshToken: "refresh-1", ExpiresAt: &exp,
		}, &connections.AtlassianMetadata{})
		require.NoError(t, err)

		second, err := f.manager.Resolve(ctx, "session-token", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		assert.Same(t, first, second)

		uncached, err := f.manager.Resolve(ctx, "", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		assert.Equal(t, "manual", uncached.AccessToken)
	})

	t.Run("force bypasses the cache and refreshes", func(t *testing.T) {
		f := setupTestFixture(t)
		f.connectJira(t, time.Hour)

		_, err := f.manager.Resolve(ctx, "session-token", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		require.Equal(t, 1, f.manager.Cache().Len())

		forced, err := f.manager.Resolve(ctx, "session-token", deviceSessionID, connections.ServiceJira, true)
		require.NoError(t, err)
		assert.Equal(t, "access-2", forced.AccessToken)
		assert.Equal(t, int32(1), f.endpoint.calls.Load())

		again, err := f.manager.Resolve(ctx, "session-token", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		assert.Equal(t, "access-2", again.AccessToken)
	})

	t.Run("refresh invalidates entries holding the old token", func(t *testing.T) {
		f := setupTestFixture(t)
		conn := f.connectJira(t, time.Hour)

		_, err := f.manager.Resolve(ctx, "caller-a", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		_, err = f.manager.Resolve(ctx, "caller-b", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		require.Equal(t, 2, f.manager.Cache().Len())

		_, err = f.manager.Resolve(ctx, "caller-a", deviceSessionID, connections.ServiceJira, true)
		require.NoError(t, err)

		b, err := f.manager.Resolve(ctx, "caller-b", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		assert.NotEqual(t, conn.Credentials.AccessToken, b.AccessToken)
	})

	t.Run("static credentials resolve without exchange", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.store.Store(ctx, deviceSessionID, connections.ServiceBitbucket, connections.Credentials{AccessToken: "basic"}, &connections.BitbucketMetadata{UUID: "u1"})
		require.NoError(t, err)

		b, err := f.manager.Resolve(ctx, "caller", deviceSessionID, connections.ServiceBitbucket, true)
		require.NoError(t, err)
		assert.Equal(t, "basic", b.AccessToken)
		assert.Equal(t, int32(0), f.endpoint.calls.Load())
	})

	t.Run("missing connection", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.manager.Resolve(ctx, "caller", deviceSessionID, connections.ServiceJira, false)
		assert.ErrorIs(t, err, apperrors.ErrNotConnected)
	})

	t.Run("invalidate session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.connectJira(t, time.Hour)
		_, err := f.manager.Resolve(ctx, "caller", deviceSessionID, connections.ServiceJira, false)
		require.NoError(t, err)
		assert.Equal(t, 1, f.manager.Invalidate(deviceSessionID))
		assert.Equal(t, 0, f.manager.Cache().Len())
	})
}
