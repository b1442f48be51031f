package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatdesk-backend/internal/jwt"
)

type contextKey struct{}

// AgentFromContext returns the agent set by ValidateAgentJWT.
func AgentFromContext(ctx context.Context) (jwt.Agent, bool) {
	agent, ok := ctx.Value(contextKey{}).(jwt.Agent)
	return agent, ok
}

func WithAgent(ctx context.Context, agent jwt.Agent) context.Context {
	return context.WithValue(ctx, contextKey{}, agent)
}

// ValidateAgentJWT requires a valid bearer token, read from the
// Authorization header or, for websocket upgrades, the token query
// parameter.
func ValidateAgentJWT(signer *jwt.Signer) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := jwt.BearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				unauthorized(w, "Unauthorized")
				return
			}

			agent, err := signer.ParseToken(tokenString)
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					unauthorized(w, "Token expired")
					return
				}
				unauthorized(w, "Unauthorized")
				return
			}

			next(w, r.WithContext(WithAgent(r.Context(), agent)))
		}
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
