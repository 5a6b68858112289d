package server

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/kay-gateway/connect"
	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/internal/config"
	"github.com/jrsteele09/kay-gateway/sessions"
	"github.com/jrsteele09/kay-gateway/token/jwt"
)

// SessionService is the part of sessions.Manager the HTTP layer needs.
type SessionService interface {
	InitSession(ctx context.Context, deviceInfo string) (*sessions.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*sessions.Tokens, error)
	Revoke(ctx context.Context, sessionToken string) error
	Authenticate(ctx context.Context, authorizationHeader string) (*jwt.SessionClaims, error)
}

// ConnectionService is the part of connect.Service the HTTP layer needs.
type ConnectionService interface {
	Connect(ctx context.Context, req connect.Request) (*connect.Result, error)
	BeginLogin(ctx context.Context, service connections.ServiceName) (*connect.Result, error)
	CompleteOAuth(ctx context.Context, code, state, serviceHint string) (*connect.Completion, error)
	Disconnect(ctx context.Context, deviceSessionID string, service connections.ServiceName) (bool, error)
	Teardown(ctx context.Context, deviceSessionID string) error
	Check(ctx context.Context, deviceSessionID string, service connections.ServiceName) error
}

// StatusReader projects the connection status of a device session.
type StatusReader interface {
	GetStatus(ctx context.Context, deviceSessionID string) (connections.SessionStatus, error)
}

type Server struct {
	env         string
	router      chi.Router
	routes      []string
	config      config.Config
	logger      zerolog.Logger
	sessions    SessionService
	connect     ConnectionService
	connections StatusReader
	connected   *template.Template
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(cfg config.Config, sessionSvc SessionService, connectSvc ConnectionService, status StatusReader, opts ...Option) (*Server, error) {
	connected, err := ParseTemplate("connected.html")
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse connected template: %w", err)
	}

	s := &Server{
		env:         cfg.GetEnv(),
		router:      chi.NewRouter(),
		config:      cfg,
		logger:      zerolog.Nop(),
		sessions:    sessionSvc,
		connect:     connectSvc,
		connections: status,
		connected:   connected,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initMiddleware()
	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterRoute mounts handler under method and pattern on the root router.
func (s *Server) RegisterRoute(method, pattern string, handler http.Handler) {
	s.RegisterRouteOn(s.router, method, pattern, handler)
}

// RegisterRouteOn mounts handler on r, which may be a middleware group.
func (s *Server) RegisterRouteOn(r chi.Router, method, pattern string, handler http.Handler) {
	s.routes = append(s.routes, method+" "+pattern)
	r.Method(method, pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		var method, path string
		if _, err := fmt.Sscanf(route, "%s %s", &method, &path); err != nil {
			logRoute("", route)
			continue
		}
		logRoute(method, path)
	}
}

func logRoute(method, path string) {
	log.Printf("[%-19s] %s\n", colouredMethod(method), path)
}

func logRequest(method, path string, status int) {
	log.Printf("[%-19s] %s %s%d%s\n", colouredMethod(method), path, statusColour(status), status, ResetColor)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
