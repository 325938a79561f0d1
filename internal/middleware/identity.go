// Package middleware provides HTTP middleware for request authentication.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is the type for context keys in this package.
type ContextKey string

const (
	// IdentityKey is the context key for the authenticated identity.
	IdentityKey ContextKey = "identity"
)

// Identity is the authenticated caller resolved from a request credential.
type Identity struct {
	UserID   string
	Username string
	Role     string
	IsActive bool
}

// IdentityResolver turns a bearer token into an authenticated identity.
// Implementations are expected to reject expired tokens and inactive users.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// IdentityFromContext retrieves the authenticated identity from the request
// context. Returns nil if not set.
func IdentityFromContext(ctx context.Context) *Identity {
	if v := ctx.Value(IdentityKey); v != nil {
		if identity, ok := v.(*Identity); ok {
			return identity
		}
	}
	return nil
}

// UserFromContext retrieves the authenticated user ID from the request
// context. Returns empty string if not set.
func UserFromContext(ctx context.Context) string {
	if identity := IdentityFromContext(ctx); identity != nil {
		return identity.UserID
	}
	return ""
}

// RequireAuth ensures a valid Bearer credential is present and stores the
// resolved identity in the request context. Requests without a resolvable
// credential get 401 Unauthorized.
func RequireAuth(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolveIdentity(r, resolver)
			if err != nil || identity == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing or invalid credentials"}`))
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth stores the identity in the context when a valid credential is
// present but lets unauthenticated requests through. Useful for endpoints
// that vary output by caller without requiring one.
func OptionalAuth(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if identity, err := resolveIdentity(r, resolver); err == nil && identity != nil {
				ctx = context.WithValue(ctx, IdentityKey, identity)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveIdentity(r *http.Request, resolver IdentityResolver) (*Identity, error) {
	token := bearerToken(r)
	if token == "" {
		// Browser WebSocket clients cannot set headers on the upgrade
		// request, so a token query parameter is accepted as well.
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return nil, nil
	}
	return resolver.Resolve(r.Context(), token)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}
