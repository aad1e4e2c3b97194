package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/fmteixeira/mesh-ui/internal/server"
)

type contextKey string

const (
	editorIDKey contextKey = "editor_id"
	emailKey    contextKey = "email"
)

// Middleware requires a valid "Bearer <token>" Authorization header and
// stores the editor identity in the request context.
func Middleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed bearer token", nil)
				return
			}

			claims, err := ValidateAccessToken(token, jwtSecret)
			if err != nil {
				server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithEditor(r.Context(), claims.EditorID(), claims.Email)))
		})
	}
}

// WithEditor returns a context carrying the editor identity.
func WithEditor(ctx context.Context, editorID, email string) context.Context {
	ctx = context.WithValue(ctx, editorIDKey, editorID)
	return context.WithValue(ctx, emailKey, email)
}

// EditorIDFromContext returns the authenticated editor ID, or "".
func EditorIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(editorIDKey).(string)
	return v
}

// EmailFromContext returns the authenticated editor's email, or "".
func EmailFromContext(ctx context.Context) string {
	v, _ := ctx.Value(emailKey).(string)
	return v
}
