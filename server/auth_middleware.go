package server

import (
	"context"
	"net/http"

	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/sessions"
	"github.com/jrsteele09/kay-gateway/token/jwt"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySessionToken stores the raw bearer token
	ContextKeySessionToken ContextKey = "session_token"
	// ContextKeyClaims stores the verified session claims
	ContextKeyClaims ContextKey = "claims"
)

// RequireBearer rejects requests without a well formed "Bearer <token>"
// Authorization header. It does not verify the token.
func (s *Server) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := sessions.ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeySessionToken, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession authenticates the bearer session token and stores its
// claims in the request context. Header shape is checked before anything else.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return s.RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.sessions.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

func sessionTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(ContextKeySessionToken).(string)
	return token
}

func claimsFrom(ctx context.Context) (*jwt.SessionClaims, error) {
	claims, ok := ctx.Value(ContextKeyClaims).(*jwt.SessionClaims)
	if !ok || claims == nil {
		return nil, apperrors.ErrTokenMissing
	}
	return claims, nil
}
