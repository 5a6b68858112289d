package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/kay-gateway/authflow"
	"github.com/jrsteele09/kay-gateway/connect"
	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/credentials"
	"github.com/jrsteele09/kay-gateway/internal/config"
	"github.com/jrsteele09/kay-gateway/internal/crypto"
	"github.com/jrsteele09/kay-gateway/providers/atlassian"
	"github.com/jrsteele09/kay-gateway/providers/bitbucket"
	"github.com/jrsteele09/kay-gateway/providers/kyg"
	"github.com/jrsteele09/kay-gateway/server"
	"github.com/jrsteele09/kay-gateway/sessions"
	"github.com/jrsteele09/kay-gateway/store/postgres"
	"github.com/jrsteele09/kay-gateway/token/keys"
	"github.com/jrsteele09/kay-gateway/token/refresh"
)

type repos struct {
	sessions    sessions.Repo
	states      authflow.Repo
	connections connections.Repo
	close       func()
}

type app struct {
	handler http.Handler
	broker  *authflow.Broker
	tokens  *refresh.Manager
	clients *credentials.ClientCache
	repos   *repos
}

// openRepos selects Postgres when DATABASE_URL is set and in-memory
// repositories otherwise.
func openRepos(ctx context.Context, c config.Config, logger zerolog.Logger, migrate bool) (*repos, error) {
	databaseURL := c.GetDatabaseURL()
	if databaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		return &repos{
			sessions:    sessions.NewInMemoryRepo(),
			states:      authflow.NewInMemoryRepo(),
			connections: connections.NewInMemoryRepo(),
			close:       func() {},
		}, nil
	}

	if migrate {
		if err := postgres.Migrate(databaseURL); err != nil {
			return nil, err
		}
		logger.Info().Msg("migrations applied")
	}

	sealer, err := crypto.NewSealer(c.GetEncryptionKey())
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if !sealer.Enabled() {
		logger.Warn().Msg("TOKEN_ENCRYPTION_KEY not set, provider tokens are stored unencrypted")
	}

	pool, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &repos{
		sessions:    postgres.NewSessionRepo(pool),
		states:      postgres.NewStateRepo(pool),
		connections: postgres.NewConnectionRepo(pool, sealer),
		close:       pool.Close,
	}, nil
}

func buildApp(ctx context.Context, c config.Config, logger zerolog.Logger, migrate bool) (*app, error) {
	component := func(name string) zerolog.Logger {
		return logger.With().Str("component", name).Logger()
	}

	r, err := openRepos(ctx, c, logger, migrate)
	if err != nil {
		return nil, err
	}

	signer, err := keys.NewSignerFromConfig(c)
	if err != nil {
		r.close()
		return nil, fmt.Errorf("[buildApp] signer: %w", err)
	}

	atl, err := atlassian.NewFromConfig(ctx, c, atlassian.WithLogger(component("atlassian")))
	if err != nil {
		r.close()
		return nil, err
	}

	sessionMgr := sessions.NewManager(r.sessions, signer, c, sessions.WithLogger(component("sessions")))
	broker := authflow.NewBroker(r.states, c, authflow.WithLogger(component("authflow")))
	store := connections.NewStore(r.connections, connections.WithLogger(component("connections")))

	exchanger := refresh.NewOAuth2Exchanger(atl.OAuth2Config(), atl.HTTPClient())
	tokens := refresh.NewManager(store, map[connections.ServiceName]refresh.Exchanger{
		connections.ServiceJira:       exchanger,
		connections.ServiceConfluence: exchanger,
	}, c, refresh.WithRefreshTimeout(c.GetProviderTimeout()), refresh.WithLogger(component("refresh")))

	clients := credentials.NewClientCache(c.GetClientCacheTTL(), credentials.WithClientCacheLogger(component("clients")))
	resolver := credentials.NewResolver(store, credentials.DefaultTransforms(tokens))

	svc := connect.NewService(connect.Dependencies{
		Sessions:    sessionMgr,
		Broker:      broker,
		Connections: store,
		Atlassian:   atl,
		Bitbucket:   bitbucket.New(c),
		KYG:         kyg.New(c),
		Clients:     clients,
		Tokens:      tokens,
		Resolver:    resolver,
		ProbeURLs:   probeURLs(c),
		Timeout:     c.GetProviderTimeout(),
	}, connect.WithLogger(component("connect")))

	srv, err := server.New(c, sessionMgr, svc, store, server.WithLogger(component("http")))
	if err != nil {
		r.close()
		return nil, err
	}

	return &app{
		handler: srv,
		broker:  broker,
		tokens:  tokens,
		clients: clients,
		repos:   r,
	}, nil
}

// probeURLs are the identity endpoints used to check a stored credential.
func probeURLs(c config.ProviderConfig) map[connections.ServiceName]string {
	atlassianMe := c.GetAtlassianAPIURL() + "/me"
	return map[connections.ServiceName]string{
		connections.ServiceJira:       atlassianMe,
		connections.ServiceConfluence: atlassianMe,
		connections.ServiceBitbucket:  c.GetBitbucketAPIURL() + "/2.0/user",
		connections.ServiceKYG:        c.GetKYGBaseURL() + "/api/auth/me",
	}
}

// start launches the background sweepers and expiry loops. They stop when ctx is cancelled.
func (a *app) start(ctx context.Context) {
	go a.broker.Run(ctx)
	go a.tokens.Cache().Run(ctx)
	go a.clients.Run(ctx)
}

func (a *app) close() {
	a.clients.Close()
	a.tokens.Cache().Close()
	a.repos.close()
}
