package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

type contextKey string

const UserIDKey contextKey = "userID"

// Authenticate is middleware to validate JWT access tokens. The token is read
// from the Authorization header, falling back to the accessToken cookie.
func Authenticate(logger *slog.Logger, tokens *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			tokenString, ok := bearerToken(r)
			if !ok {
				l.WarnContext(ctx, "Invalid Authorization header format")
				api.WriteError(w, r, logger, types.NewInvalidTokenError("Authorization header format must be Bearer {token}", nil))
				return
			}
			if tokenString == "" {
				tokenString = readCookie(r, AccessTokenCookie)
			}

			claims, err := tokens.VerifyAccessToken(tokenString)
			if err != nil {
				l.WarnContext(ctx, "Token parsing/validation failed", slog.Any("error", err))
				api.WriteError(w, r, logger, err)
				return
			}

			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			l.DebugContext(ctx, "Authentication successful, claims added to context", slog.String("userID", claims.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken returns the header token, "" when there is no header, and
// ok=false when a header is present but malformed.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", true
	}
	headerParts := strings.Split(authHeader, " ")
	if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" || headerParts[1] == "" {
		return "", false
	}
	return headerParts[1], true
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// WithUserID stores an authenticated identity, as Authenticate does.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
