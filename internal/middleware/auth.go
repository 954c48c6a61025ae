package middleware

import (
	"context"
	"net/http"
	"strings"

	"langexam/internal/auth"
)

type contextKey string

const userIDKey contextKey = "user_id"

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// DisabledChecker gates every authenticated operation on the account-disable
// flag.
type DisabledChecker interface {
	IsDisabled(ctx context.Context, userID string) (bool, error)
}

func Auth(secret string, users DisabledChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			disabled, err := users.IsDisabled(r.Context(), claims.UserID)
			if err != nil {
				http.Error(w, "unable to verify account", http.StatusInternalServerError)
				return
			}
			if disabled {
				http.Error(w, "account disabled", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
