package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/kay-gateway/connect"
	"github.com/jrsteele09/kay-gateway/connections"
	"github.com/jrsteele09/kay-gateway/credentials"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

type connectRequest struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email" validate:"omitempty,email"`
	Password  string `json:"password"`
	// APIToken is accepted as an alias of Password for bitbucket.
	APIToken string `json:"api_token"`
}

type connectResponse struct {
	Service          connections.ServiceName `json:"service"`
	SessionID        string                  `json:"session_id"`
	Connected        bool                    `json:"connected"`
	AuthorizationURL string                  `json:"authorization_url,omitempty"`
	State            string                  `json:"state,omitempty"`
	SessionReset     bool                    `json:"session_reset,omitempty"`
}

type disconnectRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type disconnectResponse struct {
	Service   connections.ServiceName `json:"service"`
	Connected bool                    `json:"connected"`
	Removed   bool                    `json:"removed"`
}

type statusResponse struct {
	SessionID   string                    `json:"session_id"`
	Connections connections.SessionStatus `json:"connections"`
}

type checkResponse struct {
	Service connections.ServiceName `json:"service"`
	OK      bool                    `json:"ok"`
}

func connectResult(res *connect.Result) connectResponse {
	return connectResponse{
		Service:          res.Service,
		SessionID:        res.DeviceSessionID,
		Connected:        res.Connected,
		AuthorizationURL: res.AuthorizationURL,
		State:            res.State,
		SessionReset:     res.SessionReset,
	}
}

// serviceParam reads and validates the service query parameter.
func serviceParam(r *http.Request) (connections.ServiceName, error) {
	raw := r.URL.Query().Get("service")
	if raw == "" {
		return "", fmt.Errorf("%w: service is required", apperrors.ErrInvalidRequest)
	}
	return connections.ParseServiceName(raw)
}

// ConnectHandler starts an OAuth connect or verifies a static credential.
func (s *Server) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	service, err := serviceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req connectRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	password := req.Password
	if password == "" {
		password = req.APIToken
	}

	res, err := s.connect.Connect(r.Context(), connect.Request{
		Service:         service,
		DeviceSessionID: req.SessionID,
		Email:           req.Email,
		Password:        password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, connectResult(res))
}

func (s *Server) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	service, err := serviceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req disconnectRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	removed, err := s.connect.Disconnect(r.Context(), req.SessionID, service)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, disconnectResponse{Service: service, Connected: false, Removed: removed})
}

// ConnectionsStatusHandler lists every service for the authenticated device
// session. A session_id query naming another session is rejected.
func (s *Server) ConnectionsStatusHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = claims.DeviceSessionID
	}
	if sessionID != claims.DeviceSessionID {
		s.writeError(w, r, apperrors.ErrSessionMismatch)
		return
	}

	status, err := s.connections.GetStatus(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{SessionID: sessionID, Connections: status})
}

// ConnectionCheckHandler probes the provider with the stored credential.
func (s *Server) ConnectionCheckHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	service, err := serviceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := credentials.WithCacheKey(r.Context(), sessionTokenFrom(r.Context()))
	if err := s.connect.Check(ctx, claims.DeviceSessionID, service); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Service: service, OK: true})
}
