// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package authz

import (
	"net/http"
	"strings"

	"github.com/avedell/vigil/internal/auth"
	"github.com/avedell/vigil/internal/logging"
)

// Actions derived from the HTTP method.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Middleware enforces the policy against every request. The object is
// the request path with the caller's own subject ID rewritten to
// "self", so a single policy row grants subjects access to their own
// record and nothing else.
func Middleware(enforcer *Enforcer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.FromContext(r.Context())
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			object := normalizeObject(r.URL.Path, claims.SubjectID)
			action := actionFor(r.Method)

			allowed, err := enforcer.Enforce(claims.Role, object, action)
			if err != nil {
				logging.Error().Err(err).
					Str("role", claims.Role).
					Str("object", object).
					Msg("authorization check failed")
				http.Error(w, "authorization unavailable", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, "permission denied", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// normalizeObject rewrites path segments equal to the caller's subject
// ID to "self".
func normalizeObject(path, subjectID string) string {
	if subjectID == "" {
		return path
	}
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == subjectID {
			segments[i] = "self"
		}
	}
	return strings.Join(segments, "/")
}

func actionFor(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return ActionRead
	default:
		return ActionWrite
	}
}
