package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/transfa/market-service/internal/domain"
)

type contextKey string

const usernameContextKey contextKey = "username"

// TokenValidator resolves a session token to a username. *security.TokenService satisfies it.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// RequestGate validates the token in the Authorization header and stores the
// authenticated username in the request context. The header carries the raw
// token; a "Bearer " prefix is accepted as well.
func RequestGate(tokens TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromHeader(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, r, domain.ErrMissingToken, logger)
				return
			}

			username, err := tokens.Validate(token)
			if err != nil {
				if logger != nil {
					logger.Info("request gate rejected token", "path", r.URL.Path, "reason", domain.AsError(err).Code)
				}
				writeError(w, r, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), usernameContextKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUsername returns the authenticated username from request context.
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameContextKey).(string)
	return username, ok
}

// tokenFromHeader returns the credential from an Authorization value, or ""
// when only the Bearer scheme is present.
func tokenFromHeader(header string) string {
	token := strings.TrimSpace(header)
	if strings.EqualFold(token, "bearer") {
		return ""
	}
	if len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	return token
}
