package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mohasbks/advanced-cid-bot/internal/pkg/response"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/token"
)

type contextKey string

const (
	ScopeKey    contextKey = "scope"
	ConsumerKey contextKey = "consumer"
)

// Auth returns middleware that validates the service token and requires one
// of the given scopes. The two consumers are the bot gateway and the admin
// panel; the admin scope also satisfies gateway-scoped routes.
func Auth(tokenService *token.Service, scopes ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		allowed[s] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := tokenService.Validate(parts[1])
			if err != nil {
				if errors.Is(err, token.ErrExpiredToken) {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			if !allowed[claims.Scope] && !(claims.Scope == token.ScopeAdmin && allowed[token.ScopeGateway]) {
				response.Forbidden(w, "Insufficient scope")
				return
			}

			ctx := context.WithValue(r.Context(), ScopeKey, claims.Scope)
			ctx = context.WithValue(ctx, ConsumerKey, claims.Subject)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetScope extracts the token scope from context.
func GetScope(ctx context.Context) string {
	if scope, ok := ctx.Value(ScopeKey).(string); ok {
		return scope
	}
	return ""
}

// GetConsumer extracts the consumer name from context.
func GetConsumer(ctx context.Context) string {
	if consumer, ok := ctx.Value(ConsumerKey).(string); ok {
		return consumer
	}
	return ""
}
