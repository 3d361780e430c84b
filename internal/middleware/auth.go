package middleware

import (
	"context"
	"net/http"
	"strings"

	"clinic-backend/internal/auth"
	"clinic-backend/internal/transport"
)

type identityKey struct{}

// WithIdentity returns a context carrying the authenticated caller, as
// Authenticate does for real requests.
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// Authenticate resolves the caller from the access cookie or a Bearer
// token and stores the resulting Identity in the request context.
func Authenticate(manager *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				transport.WriteError(w, http.StatusServiceUnavailable, "auth not configured", nil)
				return
			}

			token := ""
			if cookie, err := r.Cookie(auth.AccessCookieName); err == nil {
				token = cookie.Value
			}
			if token == "" {
				if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
					token = strings.TrimPrefix(header, "Bearer ")
				}
			}
			if token == "" {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}

			claims, err := manager.Parse(token)
			if err != nil || claims.Subject == "" {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}

			identity := auth.Identity{UserID: claims.Subject, Role: claims.Role}
			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole guards a sub-router to the listed roles. It assumes
// Authenticate already ran.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			if _, ok := allowed[identity.Role]; !ok {
				transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	v := ctx.Value(identityKey{})
	if v == nil {
		return auth.Identity{}, false
	}
	identity, ok := v.(auth.Identity)
	return identity, ok
}
