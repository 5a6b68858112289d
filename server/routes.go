package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRoute(http.MethodGet, RouteHealth, http.HandlerFunc(s.HealthHandler))
	s.RegisterRoute(http.MethodGet, RouteMetrics, promhttp.Handler())

	// CLI sessions
	s.RegisterRoute(http.MethodPost, RouteSessionInit, http.HandlerFunc(s.SessionInitHandler))
	s.RegisterRoute(http.MethodPost, RouteSessionRefresh, http.HandlerFunc(s.SessionRefreshHandler))
	s.router.Group(func(r chi.Router) {
		// Revoke accepts expired session tokens, so only the header shape is checked here.
		r.Use(s.RequireBearer)
		s.RegisterRouteOn(r, http.MethodDelete, RouteSessionRevoke, http.HandlerFunc(s.SessionRevokeHandler))
	})

	// Session scoped routes
	s.router.Group(func(r chi.Router) {
		r.Use(s.RequireSession)
		s.RegisterRouteOn(r, http.MethodDelete, RouteSession, http.HandlerFunc(s.SessionTeardownHandler))
		s.RegisterRouteOn(r, http.MethodGet, RouteConnections, http.HandlerFunc(s.ConnectionsStatusHandler))
		s.RegisterRouteOn(r, http.MethodGet, RouteConnectionsCheck, http.HandlerFunc(s.ConnectionCheckHandler))
	})

	// Connect flows. The device session id travels in the body.
	s.RegisterRoute(http.MethodPost, RouteConnectionsConnect, http.HandlerFunc(s.ConnectHandler))
	s.RegisterRoute(http.MethodPost, RouteConnectionsDisconnect, http.HandlerFunc(s.DisconnectHandler))

	// OAuth
	s.RegisterRoute(http.MethodGet, RouteOAuthAuthorize, http.HandlerFunc(s.OAuthAuthorizeHandler))
	s.RegisterRoute(http.MethodGet, RouteOAuthCallback, http.HandlerFunc(s.OAuthCallbackHandler))
}
