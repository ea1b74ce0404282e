// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avedell/vigil/internal/auth"
)

func newTestEnforcer(t *testing.T) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(Config{})
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	return e
}

func TestEmbeddedPolicy(t *testing.T) {
	e := newTestEnforcer(t)

	cases := []struct {
		role   string
		object string
		action string
		want   bool
	}{
		{"admin", "/api/v1/signals", "read", true},
		{"admin", "/api/v1/recompute/subject-1", "write", true},
		{"admin", "/api/v1/rankings/2026-08-28/creators", "read", true},

		{"subject", "/api/v1/trust/self", "read", true},
		{"subject", "/api/v1/trust/other-subject", "read", false},
		{"subject", "/api/v1/signals", "read", false},
		{"subject", "/api/v1/recompute/self", "write", false},
		// Inherited from public.
		{"subject", "/api/v1/rankings/2026-08-28/creators", "read", true},

		{"public", "/api/v1/rankings/2026-08-28/creators", "read", true},
		{"public", "/api/v1/health", "read", true},
		{"public", "/api/v1/trust/self", "read", false},
		{"public", "/api/v1/signals", "read", false},
		{"public", "/api/v1/rankings/2026-08-28/creators", "write", false},
	}
	for _, tc := range cases {
		got, err := e.Enforce(tc.role, tc.object, tc.action)
		if err != nil {
			t.Fatalf("enforce(%s, %s, %s): %v", tc.role, tc.object, tc.action, err)
		}
		if got != tc.want {
			t.Errorf("enforce(%s, %s, %s) = %v, want %v", tc.role, tc.object, tc.action, got, tc.want)
		}
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		path, subject, want string
	}{
		{"/api/v1/trust/sub-1", "sub-1", "/api/v1/trust/self"},
		{"/api/v1/trust/sub-2", "sub-1", "/api/v1/trust/sub-2"},
		{"/api/v1/trust/sub-1", "", "/api/v1/trust/sub-1"},
		{"/api/v1/signals", "sub-1", "/api/v1/signals"},
	}
	for _, tc := range cases {
		if got := normalizeObject(tc.path, tc.subject); got != tc.want {
			t.Errorf("normalizeObject(%q, %q) = %q, want %q", tc.path, tc.subject, got, tc.want)
		}
	}
}

func serveWithClaims(t *testing.T, e *Enforcer, claims *auth.Claims, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	handler := Middleware(e)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, path, nil)
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareSelfAccess(t *testing.T) {
	e := newTestEnforcer(t)
	claims := &auth.Claims{SubjectID: "sub-1", Role: auth.RoleSubject}

	if rec := serveWithClaims(t, e, claims, http.MethodGet, "/api/v1/trust/sub-1"); rec.Code != http.StatusOK {
		t.Errorf("own record: status = %d, want 200", rec.Code)
	}
	if rec := serveWithClaims(t, e, claims, http.MethodGet, "/api/v1/trust/sub-2"); rec.Code != http.StatusForbidden {
		t.Errorf("other record: status = %d, want 403", rec.Code)
	}
}

func TestMiddlewareAdminAndPublic(t *testing.T) {
	e := newTestEnforcer(t)

	admin := &auth.Claims{SubjectID: "ops-1", Role: auth.RoleAdmin}
	if rec := serveWithClaims(t, e, admin, http.MethodPost, "/api/v1/recompute/sub-9"); rec.Code != http.StatusOK {
		t.Errorf("admin recompute: status = %d, want 200", rec.Code)
	}

	public := &auth.Claims{Role: auth.RolePublic}
	if rec := serveWithClaims(t, e, public, http.MethodGet, "/api/v1/rankings/2026-08-28/creators"); rec.Code != http.StatusOK {
		t.Errorf("public rankings: status = %d, want 200", rec.Code)
	}
	if rec := serveWithClaims(t, e, public, http.MethodGet, "/api/v1/signals"); rec.Code != http.StatusForbidden {
		t.Errorf("public signals: status = %d, want 403", rec.Code)
	}
}

func TestMiddlewareRequiresClaims(t *testing.T) {
	e := newTestEnforcer(t)
	if rec := serveWithClaims(t, e, nil, http.MethodGet, "/api/v1/health"); rec.Code != http.StatusUnauthorized {
		t.Errorf("no claims: status = %d, want 401", rec.Code)
	}
}
