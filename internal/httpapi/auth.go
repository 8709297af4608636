// Package httpapi implements the §6 HTTP surface on net/http.ServeMux:
// room CRUD, message send/history/poll, and the SSE ticket mint +
// stream endpoints, grounded on the teacher's internal/http handler
// style (one handler struct per resource, RegisterRoutes(mux), a shared
// authMiddleware, writeJSON/extractBearerToken helpers).
package httpapi

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"
const roleKey contextKey = "role"

// Identity is the caller resolved from either the bearer token or an SSE
// ticket.
type Identity struct {
	UserID string
	Role   string // "admin" or "guest"
}

// TokenVerifier resolves an opaque bearer token to an Identity. The
// concrete implementation (JWT, opaque DB-backed session, etc.) is
// injected so this package stays decoupled from the auth scheme.
type TokenVerifier func(token string) (Identity, bool)

func extractBearerToken(r *http.Request) string {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

// authMiddleware resolves the bearer token via verify and rejects the
// request with 401 if it does not resolve. On success, the identity is
// attached to the request context.
func authMiddleware(verify TokenVerifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := verify(extractBearerToken(r))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, identity.UserID)
		ctx = context.WithValue(ctx, roleKey, identity.Role)
		next(w, r.WithContext(ctx))
	}
}

func identityFromContext(ctx context.Context) Identity {
	userID, _ := ctx.Value(userIDKey).(string)
	role, _ := ctx.Value(roleKey).(string)
	return Identity{UserID: userID, Role: role}
}
