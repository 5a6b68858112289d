package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/kay-gateway/connections"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

type authorizeResponse struct {
	Service          connections.ServiceName `json:"service"`
	AuthorizationURL string                  `json:"authorization_url"`
	State            string                  `json:"state"`
}

type callbackResponse struct {
	Service   connections.ServiceName `json:"service"`
	SessionID string                  `json:"session_id"`
	Connected bool                    `json:"connected"`
	// Session is set when the callback created the device session.
	Session *sessionTokensResponse `json:"session,omitempty"`
}

// ConnectedPageData is rendered after a successful OAuth callback.
// SessionID and RefreshToken are shown only for sessions the callback created.
type ConnectedPageData struct {
	AppName      string
	Service      string
	SessionID    string
	RefreshToken string
}

// OAuthAuthorizeHandler starts an authorization whose state is bound to a
// device session only at callback time. Browsers are redirected; clients
// asking for JSON get the URL back.
func (s *Server) OAuthAuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	service := connections.ServiceJira
	if r.URL.Query().Get("service") != "" {
		var err error
		if service, err = serviceParam(r); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	res, err := s.connect.BeginLogin(r.Context(), service)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, authorizeResponse{
			Service:          res.Service,
			AuthorizationURL: res.AuthorizationURL,
			State:            res.State,
		})
		return
	}
	http.Redirect(w, r, res.AuthorizationURL, http.StatusFound)
}

// OAuthCallbackHandler completes the provider redirect. Success renders the
// connected page, or JSON when asked for; every failure is a JSON error body.
func (s *Server) OAuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		msg := "authorization was not granted: " + providerErr
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		s.writeError(w, r, apperrors.NewCoded(apperrors.CodeInvalidRequest, msg))
		return
	}

	completion, err := s.connect.CompleteOAuth(r.Context(), q.Get("code"), q.Get("state"), q.Get("service"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.loggerFrom(r).Info().
		Str("device_session_id", completion.DeviceSessionID).
		Str("service", string(completion.Service)).
		Msg("oauth callback completed")

	// The body may carry session credentials.
	w.Header().Set("Cache-Control", "no-store")

	if wantsJSON(r) {
		res := callbackResponse{
			Service:   completion.Service,
			SessionID: completion.DeviceSessionID,
			Connected: true,
		}
		if completion.Tokens != nil {
			tokens := tokensResponse(completion.Tokens)
			res.Session = &tokens
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	data := ConnectedPageData{
		AppName: s.config.GetAppName(),
		Service: displayName(completion.Service),
	}
	if completion.Tokens != nil {
		data.SessionID = completion.DeviceSessionID
		data.RefreshToken = completion.Tokens.RefreshToken
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = s.connected.Execute(w, data)
}

func wantsJSON(r *http.Request) bool {
	return r.URL.Query().Get("format") == "json" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func displayName(service connections.ServiceName) string {
	switch service {
	case connections.ServiceJira:
		return "Jira"
	case connections.ServiceConfluence:
		return "Confluence"
	case connections.ServiceBitbucket:
		return "Bitbucket"
	case connections.ServiceKYG:
		return "KYG"
	default:
		return string(service)
	}
}
