package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ignite/enrollment-engine/internal/pkg/httputil"
)

// UserIDHeader carries the caller's user id on every /api request.
const UserIDHeader = "X-User-ID"

type userContextKey struct{}

// RequireUser rejects requests without a user id and stores it on the context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			httputil.Error(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, userID)))
	})
}

// UserID returns the user id stored by RequireUser.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userContextKey{}).(string)
	return id
}
