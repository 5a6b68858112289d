package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/kay-gateway/sessions"
)

type sessionInitRequest struct {
	DeviceInfo string `json:"device_info" validate:"max=512"`
}

type sessionRefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type sessionTokensResponse struct {
	SessionID        string    `json:"session_id"`
	SessionToken     string    `json:"session_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func tokensResponse(t *sessions.Tokens) sessionTokensResponse {
	return sessionTokensResponse{
		SessionID:        t.DeviceSessionID,
		SessionToken:     t.SessionToken,
		RefreshToken:     t.RefreshToken,
		ExpiresAt:        t.ExpiresAt,
		SessionExpiresAt: t.SessionExpiresAt,
	}
}

// SessionInitHandler creates a device session and its first CLI session.
func (s *Server) SessionInitHandler(w http.ResponseWriter, r *http.Request) {
	var req sessionInitRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.sessions.InitSession(r.Context(), req.DeviceInfo)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokensResponse(tokens))
}

// SessionRefreshHandler exchanges a refresh token for a new session token.
func (s *Server) SessionRefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req sessionRefreshRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokensResponse(tokens))
}

func (s *Server) SessionRevokeHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Revoke(r.Context(), sessionTokenFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "session revoked"})
}

// SessionTeardownHandler deletes the authenticated device session together
// with its connections and CLI sessions.
func (s *Server) SessionTeardownHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.connect.Teardown(r.Context(), claims.DeviceSessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "device session deleted"})
}

func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
