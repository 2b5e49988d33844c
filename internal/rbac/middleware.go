package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dplaneos/dplaned/internal/platform/httpx"
	"github.com/dplaneos/dplaned/internal/shared"
)

// SessionValidator is the narrow contract the middleware needs from the
// session store.
type SessionValidator interface {
	ValidateSessionAndGetUser(ctx context.Context, token string) (*shared.User, error)
}

// Middleware wires session authentication and permission checks for HTTP
// handlers. The web layer never bypasses these.
type Middleware struct {
	Sessions SessionValidator
	Service  *Service
	Logger   *slog.Logger
}

// RequireAuth resolves the session token, validates it against the store and
// attaches the user to the request context. Missing or invalid tokens get a
// generic 401; storage failures resolve the same way (fail-closed).
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Session-Token")
		if token == "" {
			if cookie, err := r.Cookie("session_token"); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no session token provided")
			return
		}

		user, err := m.Sessions.ValidateSessionAndGetUser(r.Context(), token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("session validation rejected", slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid session token")
			return
		}

		ctx := shared.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission ensures the authenticated user holds (resource, action).
func (m Middleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := shared.UserFromContext(r.Context())
			if user == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no valid session")
				return
			}
			has, err := m.Service.UserHasPermission(r.Context(), user.ID, resource, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to check permissions")
				return
			}
			if !has {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions: "+resource+":"+action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission ensures the user holds at least one listed permission.
func (m Middleware) RequireAnyPermission(required ...Permission) func(http.Handler) http.Handler {
	return m.combinator(required, func(ctx context.Context, userID int64, perms []Permission) (bool, error) {
		return m.Service.UserHasAnyPermission(ctx, userID, perms)
	})
}

// RequireAllPermissions ensures the user holds every listed permission.
func (m Middleware) RequireAllPermissions(required ...Permission) func(http.Handler) http.Handler {
	return m.combinator(required, func(ctx context.Context, userID int64, perms []Permission) (bool, error) {
		return m.Service.UserHasAllPermissions(ctx, userID, perms)
	})
}

func (m Middleware) combinator(required []Permission, check func(context.Context, int64, []Permission) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := shared.UserFromContext(r.Context())
			if user == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no valid session")
				return
			}
			has, err := check(r.Context(), user.ID, required)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "failed to check permissions")
				return
			}
			if !has {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
