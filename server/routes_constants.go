package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// CLI session routes
	RouteSessionInit    = "/session/init"
	RouteSessionRefresh = "/session/refresh"
	RouteSessionRevoke  = "/session/revoke"
	RouteSession        = "/session"

	// Connection routes
	RouteConnections           = "/connections"
	RouteConnectionsConnect    = "/connections/connect"
	RouteConnectionsDisconnect = "/connections/disconnect"
	RouteConnectionsCheck      = "/connections/check"

	// Provider facing OAuth routes
	RouteOAuthAuthorize = "/oauth/authorize"
	RouteOAuthCallback  = "/oauth/callback"

	// Operational routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
