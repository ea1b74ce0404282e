// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// anonymousClaims stands in for unauthenticated callers so the
// authorization layer always has a role to enforce against.
var anonymousClaims = &Claims{Role: RolePublic}

// FromContext returns the verified claims attached by Authenticate.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// WithClaims attaches claims to a context. Exposed for handler tests.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// Middleware attaches verified claims to each request. Requests without
// a bearer token proceed as the public role; routes that need more are
// rejected by the authorization middleware, not here, so public
// endpoints like rankings stay tokenless.
type Middleware struct {
	manager  *Manager
	disabled bool
}

// NewMiddleware creates the authentication middleware. When disabled,
// every request is treated as an anonymous admin (development only).
func NewMiddleware(manager *Manager, disabled bool) *Middleware {
	return &Middleware{manager: manager, disabled: disabled}
}

// Authenticate is a chi-compatible middleware.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			ctx := WithClaims(r.Context(), &Claims{Role: RoleAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token := bearerToken(r)
		if token == "" {
			ctx := WithClaims(r.Context(), anonymousClaims)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		claims, err := m.manager.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
