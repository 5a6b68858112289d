package connect_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/kay-gateway/authflow"
	"github.com/jrsteele09/kay-gateway/connect"
	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/credentials"
	"github.com/jrsteele09/kay-gateway/internal/config"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/providers"
	"github.com/jrsteele09/kay-gateway/providers/bitbucket"
	"github.com/jrsteele09/kay-gateway/sessions"
	"github.com/jrsteele09/kay-gateway/token/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type providerConfig struct {
	config.Providers
	bitbucketURL string
}

func (c providerConfig) GetBitbucketAPIURL() string { return c.bitbucketURL }

type fakeAtlassian struct {
	calls int
	err   error
}

func (f *fakeAtlassian) AuthCodeURL(state string) string {
	return "https://auth.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeAtlassian) Connect(_ context.Context, code string) (connections.Credentials, *connections.AtlassianMetadata, error) {
	f.calls++
	if f.err != nil {
		return connections.Credentials{}, nil, f.err
	}
	exp := time.Now().Add(time.Hour)
	return connections.Credentials{AccessToken: "at-" + code, RefreshToken: "rt-" + code, ExpiresAt: &exp},
		&connections.AtlassianMetadata{AccountID: "acc-1", UserData: connections.AtlassianUser{Name: "Ada"}}, nil
}

type fakeKYG struct {
	err error
}

func (f *fakeKYG) Login(_ context.Context, email, _ string) (string, *connections.KYGMetadata, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return "kyg-token", &connections.KYGMetadata{UserID: "7", Email: email}, nil
}

type testFixture struct {
	service   *connect.Service
	sessions  *sessions.Manager
	devices   *sessions.InMemoryRepo
	broker    *authflow.Broker
	store     *connections.Store
	clients   *credentials.ClientCache
	atlassian *fakeAtlassian
	kyg       *fakeKYG
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	config.ResetFile()

	bb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if user != "a@b.com" || pass != "x" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid credentials"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"uuid":"u1","username":"ada","display_name":"Ada"}`))
	}))
	t.Cleanup(bb.Close)

	signer, err := keys.NewHMACSigner(testSecret)
	require.NoError(t, err)

	devices := sessions.NewInMemoryRepo()
	f := &testFixture{
		sessions:  sessions.NewManager(devices, signer, config.Security{}),
		devices:   devices,
		broker:    authflow.NewBroker(authflow.NewInMemoryRepo(), config.OAuth{}),
		store:     connections.NewStore(connections.NewInMemoryRepo()),
		clients:   credentials.NewClientCache(time.Minute),
		atlassian: &fakeAtlassian{},
		kyg:       &fakeKYG{},
	}
	resolver := credentials.NewResolver(f.store, credentials.DefaultTransforms(nil))
	f.service = connect.NewService(connect.Dependencies{
		Sessions:    f.sessions,
		Broker:      f.broker,
		Connections: f.store,
		Atlassian:   f.atlassian,
		Bitbucket:   bitbucket.New(providerConfig{bitbucketURL: bb.URL}),
		KYG:         f.kyg,
		Clients:     f.clients,
		Resolver:    resolver,
		ProbeURLs:   map[connections.ServiceName]string{connections.ServiceBitbucket: bb.URL + "/2.0/user"},
	})
	return f
}

func TestConnectBitbucketEndToEnd(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tokens, err := f.sessions.InitSession(ctx, "")
	require.NoError(t, err)
	require.Contains(t, tokens.DeviceSessionID, "kaysession_")

	res, err := f.service.Connect(ctx, connect.Request{
		Service:         connections.ServiceBitbucket,
		DeviceSessionID: tokens.DeviceSessionID,
		Email:           "a@b.com",
		Password:        "x",
	})
	require.NoError(t, err)
	assert.True(t, res.Connected)
	assert.False(t, res.SessionReset)
	assert.Equal(t, tokens.DeviceSessionID, res.DeviceSessionID)

	status, err := f.store.GetStatus(ctx, tokens.DeviceSessionID)
	require.NoError(t, err)
	assert.True(t, status[connections.ServiceBitbucket].Connected)
	assert.Equal(t, "ada", status[connections.ServiceBitbucket].User["username"])

	require.NoError(t, f.service.Check(ctx, tokens.DeviceSessionID, connections.ServiceBitbucket))
	assert.Equal(t, 1, f.clients.Len())
}

func TestConnectBitbucketFailedVerificationRemovesStaleConnection(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	res, err := f.service.Connect(ctx, connect.Request{Service: connections.ServiceBitbucket, Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	dsid := res.DeviceSessionID

	_, err = f.service.Connect(ctx, connect.Request{Service: connections.ServiceBitbucket, DeviceSessionID: dsid, Email: "a@b.com", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrVerificationFailed)

	_, err = f.store.Get(ctx, dsid, connections.ServiceBitbucket)
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestConnectKYGFailureLeavesPriorState(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	res, err := f.service.Connect(ctx, connect.Request{Service: connections.ServiceKYG, Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	require.True(t, res.Connected)

	f.kyg.err = &providers.ProviderError{Provider: "kyg", Op: "login", StatusCode: 401, Err: apperrors.ErrVerificationFailed}
	_, err = f.service.Connect(ctx, connect.Request{Service: connections.ServiceKYG, DeviceSessionID: res.DeviceSessionID, Email: "a@b.com", Password: "bad"})
	require.Error(t, err)

	conn, err := f.store.Get(ctx, res.DeviceSessionID, connections.ServiceKYG)
	require.NoError(t, err)
	assert.Equal(t, "kyg-token", conn.Credentials.AccessToken)
}

func TestFailedStaticConnectCreatesNoSession(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		service   connections.ServiceName
		sessionID string
		password  string
	}{
		{name: "kyg without session", service: connections.ServiceKYG, password: "bad"},
		{name: "kyg with unknown session", service: connections.ServiceKYG, sessionID: "kaysession_0_gone", password: "bad"},
		{name: "bitbucket without session", service: connections.ServiceBitbucket, password: "wrong"},
		{name: "bitbucket with unknown session", service: connections.ServiceBitbucket, sessionID: "kaysession_0_gone", password: "wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.kyg.err = &providers.ProviderError{Provider: "kyg", Op: "login", StatusCode: 401, Err: apperrors.ErrVerificationFailed}

			for i := 0; i < 3; i++ {
				_, err := f.service.Connect(ctx, connect.Request{
					Service:         tt.service,
					DeviceSessionID: tt.sessionID,
					Email:           "a@b.com",
					Password:        tt.password,
				})
				require.Error(t, err)
			}
			assert.Zero(t, f.devices.DeviceSessionCount())
		})
	}
}

func TestStaticConnectUnknownSessionIsReset(t *testing.T) {
	f := setupTestFixture(t)

	res, err := f.service.Connect(context.Background(), connect.Request{
		Service:         connections.ServiceKYG,
		DeviceSessionID: "kaysession_0_gone",
		Email:           "a@b.com",
		Password:        "pw",
	})
	require.NoError(t, err)
	assert.True(t, res.Connected)
	assert.True(t, res.SessionReset)
	assert.NotEqual(t, "kaysession_0_gone", res.DeviceSessionID)
	assert.Equal(t, 1, f.devices.DeviceSessionCount())
}

func TestConnectUnknownSessionIsReset(t *testing.T) {
	f := setupTestFixture(t)

	res, err := f.service.Connect(context.Background(), connect.Request{Service: connections.ServiceJira, DeviceSessionID: "kaysession_0_gone"})
	require.NoError(t, err)
	assert.True(t, res.SessionReset)
	assert.NotEqual(t, "kaysession_0_gone", res.DeviceSessionID)
	assert.False(t, res.Connected)
}

func TestOAuthFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("bound state completes and mirrors", func(t *testing.T) {
		f := setupTestFixture(t)
		res, err := f.service.Connect(ctx, connect.Request{Service: connections.ServiceJira})
		require.NoError(t, err)
		require.NotEmpty(t, res.State)
		assert.Contains(t, res.AuthorizationURL, url.QueryEscape(res.State))

		done, err := f.service.CompleteOAuth(ctx, "code1", res.State, "")
		require.NoError(t, err)
		assert.Equal(t, res.DeviceSessionID, done.DeviceSessionID)
		assert.Nil(t, done.Tokens)
		assert.Equal(t, connections.ServiceJira, done.Service)

		mirror, err := f.store.Get(ctx, res.DeviceSessionID, connections.ServiceConfluence)
		require.NoError(t, err)
		assert.Equal(t, "at-code1", mirror.Credentials.AccessToken)

		ok, err := f.broker.Validate(ctx, res.State)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = f.service.CompleteOAuth(ctx, "code1", res.State, "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
		assert.Equal(t, 1, f.atlassian.calls)
	})

	t.Run("unknown state", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.CompleteOAuth(ctx, "code", "nope", "jira")
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
		assert.Equal(t, apperrors.CodeTokenInvalid, apperrors.CodeOf(err))
	})

	t.Run("missing parameters", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.CompleteOAuth(ctx, "code", "", "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
		_, err = f.service.CompleteOAuth(ctx, "", "state", "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	})

	t.Run("legacy login binds at callback", func(t *testing.T) {
		f := setupTestFixture(t)
		res, err := f.service.BeginLogin(ctx, connections.ServiceConfluence)
		require.NoError(t, err)
		assert.Empty(t, res.DeviceSessionID)

		done, err := f.service.CompleteOAuth(ctx, "code2", res.State, "")
		require.NoError(t, err)
		assert.Equal(t, connections.ServiceConfluence, done.Service)
		assert.Contains(t, done.DeviceSessionID, sessions.DeviceSessionPrefix)

		require.NotNil(t, done.Tokens)
		assert.Equal(t, done.DeviceSessionID, done.Tokens.DeviceSessionID)
		claims, err := f.sessions.Authenticate(ctx, "Bearer "+done.Tokens.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, done.DeviceSessionID, claims.DeviceSessionID)

		status, err := f.store.GetStatus(ctx, claims.DeviceSessionID)
		require.NoError(t, err)
		assert.True(t, status[connections.ServiceConfluence].Connected)
		assert.True(t, status[connections.ServiceJira].Connected)
	})

	t.Run("legacy exchange failure creates no session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.atlassian.err = &providers.ProviderError{Provider: "atlassian", Op: "exchange", StatusCode: 400, Message: "bad code"}
		res, err := f.service.BeginLogin(ctx, connections.ServiceJira)
		require.NoError(t, err)

		_, err = f.service.CompleteOAuth(ctx, "code", res.State, "")
		require.Error(t, err)
		assert.Zero(t, f.devices.DeviceSessionCount())
	})

	t.Run("legacy login rejects static providers", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.BeginLogin(ctx, connections.ServiceKYG)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	})

	t.Run("exchange failure stores nothing", func(t *testing.T) {
		f := setupTestFixture(t)
		f.atlassian.err = &providers.ProviderError{Provider: "atlassian", Op: "exchange", StatusCode: 400, Message: "bad code"}
		res, err := f.service.Connect(ctx, connect.Request{Service: connections.ServiceJira})
		require.NoError(t, err)

		_, err = f.service.CompleteOAuth(ctx, "code", res.State, "jira")
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeProviderError, apperrors.CodeOf(err))

		status, err := f.store.GetStatus(ctx, res.DeviceSessionID)
		require.NoError(t, err)
		assert.False(t, status[connections.ServiceJira].Connected)
	})
}

func TestDisconnect(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	res, err := f.service.Connect(ctx, connect.Request{Service: connections.ServiceJira})
	require.NoError(t, err)
	_, err = f.service.CompleteOAuth(ctx, "c", res.State, "")
	require.NoError(t, err)

	removed, err := f.service.Disconnect(ctx, res.DeviceSessionID, connections.ServiceJira)
	require.NoError(t, err)
	assert.True(t, removed)

	status, err := f.store.GetStatus(ctx, res.DeviceSessionID)
	require.NoError(t, err)
	assert.False(t, status[connections.ServiceJira].Connected)
	assert.False(t, status[connections.ServiceConfluence].Connected)

	removed, err = f.service.Disconnect(ctx, res.DeviceSessionID, connections.ServiceJira)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.service.Disconnect(ctx, "", connections.ServiceJira)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestTeardown(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	res, err := f.service.Connect(ctx, connect.Request{Service: connections.ServiceBitbucket, Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	require.NoError(t, f.service.Check(ctx, res.DeviceSessionID, connections.ServiceBitbucket))

	require.NoError(t, f.service.Teardown(ctx, res.DeviceSessionID))
	assert.Equal(t, 0, f.clients.Len())

	_, err = f.sessions.GetDeviceSession(ctx, res.DeviceSessionID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = f.store.Get(ctx, res.DeviceSessionID, connections.ServiceBitbucket)
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestCheckRejectedCredential(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	res, err := f.service.Connect(ctx, connect.Request{Service: connections.ServiceBitbucket, Email: "a@b.com", Password: "x"})
	require.NoError(t, err)

	_, err = f.store.Store(ctx, res.DeviceSessionID, connections.ServiceBitbucket,
		connections.Credentials{AccessToken: bitbucket.EncodeBasicCredential("a@b.com", "revoked")},
		&connections.BitbucketMetadata{UUID: "u1"})
	require.NoError(t, err)

	err = f.service.Check(ctx, res.DeviceSessionID, connections.ServiceBitbucket)
	assert.ErrorIs(t, err, apperrors.ErrNoUsableCredential)

	err = f.service.Check(ctx, res.DeviceSessionID, connections.ServiceKYG)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}
