// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/avedell/vigil/internal/auth"
	"github.com/avedell/vigil/internal/authz"
	"github.com/avedell/vigil/internal/config"
	"github.com/avedell/vigil/internal/detection"
	"github.com/avedell/vigil/internal/ranking"
	"github.com/avedell/vigil/internal/risk"
	"github.com/avedell/vigil/internal/signal"
	"github.com/avedell/vigil/internal/trust"
)

type fakeSignalStore struct {
	signals []signal.Signal
}

func (f *fakeSignalStore) Append(context.Context, *signal.Signal) error { return nil }

func (f *fakeSignalStore) List(_ context.Context, filter signal.Filter) ([]signal.Signal, error) {
	matched := f.match(filter)
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (f *fakeSignalStore) Count(_ context.Context, filter signal.Filter) (int, error) {
	return len(f.match(filter)), nil
}

func (f *fakeSignalStore) match(filter signal.Filter) []signal.Signal {
	var out []signal.Signal
	for _, s := range f.signals {
		if filter.SubjectID != "" && s.SubjectID != filter.SubjectID {
			continue
		}
		if filter.MinSeverity > 0 && s.Severity < filter.MinSeverity {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (f *fakeSignalStore) History(context.Context, string) ([]signal.Signal, error) {
	return nil, nil
}

func (f *fakeSignalStore) CountsByType(context.Context, string) (map[signal.Type]int, error) {
	return nil, nil
}

func (f *fakeSignalStore) ActiveSubjects(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeSignalStore) PruneOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeRiskReader struct {
	records map[string]*risk.Record
}

func (f *fakeRiskReader) Get(_ context.Context, subjectID string) (*risk.Record, error) {
	if record, ok := f.records[subjectID]; ok {
		return record, nil
	}
	return nil, risk.ErrNotFound
}

func (f *fakeRiskReader) ListAbove(_ context.Context, minScore int) ([]risk.Record, error) {
	var out []risk.Record
	for _, record := range f.records {
		if record.Score >= minScore {
			out = append(out, *record)
		}
	}
	return out, nil
}

type fakeTrustReader struct {
	records map[string]*trust.Record
}

func (f *fakeTrustReader) Get(_ context.Context, subjectID string) (*trust.Record, error) {
	if record, ok := f.records[subjectID]; ok {
		return record, nil
	}
	return nil, trust.ErrNotFound
}

type fakeRankingReader struct {
	snapshots map[string]*ranking.Snapshot
}

func (f *fakeRankingReader) Get(_ context.Context, date, population string) (*ranking.Snapshot, error) {
	if snap, ok := f.snapshots[date+"/"+population]; ok {
		return snap, nil
	}
	return nil, ranking.ErrNotFound
}

type fakeRecomputer struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeRecomputer) Recompute(_ context.Context, subjectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subjectID)
	return nil
}

type fakeDetection struct {
	disabled map[signal.Type]bool
}

func (f *fakeDetection) Status() detection.EngineStatus {
	return detection.EngineStatus{TrackedSubjects: 3}
}

func (f *fakeDetection) SetEnabled(typ signal.Type, enabled bool) bool {
	for _, known := range signal.AllTypes() {
		if typ == known {
			f.disabled[typ] = !enabled
			return true
		}
	}
	return false
}

type testServer struct {
	handler   http.Handler
	manager   *auth.Manager
	recompute *fakeRecomputer
	detection *fakeDetection
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	manager, err := auth.NewManager(config.SecurityConfig{JWTSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatal(err)
	}
	enforcer, err := authz.NewEnforcer(authz.Config{})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	signals := &fakeSignalStore{signals: []signal.Signal{
		{ID: "s1", SubjectID: "sub-1", Type: signal.TypePanicSpike, Severity: 4, DetectedAt: now},
		{ID: "s2", SubjectID: "sub-1", Type: signal.TypeCopyPaste, Severity: 1, DetectedAt: now},
		{ID: "s3", SubjectID: "sub-2", Type: signal.TypeTokenDrain, Severity: 2, DetectedAt: now},
	}}
	risks := &fakeRiskReader{records: map[string]*risk.Record{
		"sub-1": {SubjectID: "sub-1", Score: 62, Level: risk.LevelHigh, RecalculatedAt: now},
	}}
	trusts := &fakeTrustReader{records: map[string]*trust.Record{
		"sub-1": {SubjectID: "sub-1", Score: 55, Tier: trust.TierFair, RecalculatedAt: now},
	}}
	rankings := &fakeRankingReader{snapshots: map[string]*ranking.Snapshot{
		"2026-08-28/creators": {
			Date:       "2026-08-28",
			Population: "creators",
			Entries:    []ranking.Entry{{SubjectID: "sub-1", Rank: 1, Score: 55}},
		},
	}}

	recompute := &fakeRecomputer{}
	status := &fakeDetection{disabled: make(map[signal.Type]bool)}

	cfg := config.APIConfig{DefaultPageSize: 2, MaxPageSize: 10}
	handler := NewHandler(cfg, signals, risks, trusts, rankings, recompute, status)

	router := NewRouter(RouterDeps{
		Handler:  handler,
		Auth:     auth.NewMiddleware(manager, false),
		Enforcer: enforcer,
		Security: config.SecurityConfig{},
		API:      cfg,
	})

	return &testServer{handler: router, manager: manager, recompute: recompute, detection: status}
}

func (ts *testServer) request(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, *Response) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var envelope Response
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
		}
	}
	return rec, &envelope
}

func (ts *testServer) token(t *testing.T, subjectID, role string) string {
	t.Helper()
	token, err := ts.manager.GenerateToken(subjectID, role)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)
	rec, envelope := ts.request(t, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK || !envelope.Success {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSignalsRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/signals", "", ""); rec.Code != http.StatusForbidden {
		t.Errorf("anonymous: status = %d, want 403", rec.Code)
	}

	subjectToken := ts.token(t, "sub-1", auth.RoleSubject)
	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/signals", subjectToken, ""); rec.Code != http.StatusForbidden {
		t.Errorf("subject: status = %d, want 403", rec.Code)
	}

	adminToken := ts.token(t, "ops", auth.RoleAdmin)
	rec, envelope := ts.request(t, http.MethodGet, "/api/v1/signals", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d", rec.Code)
	}
	if envelope.Meta == nil || envelope.Meta.Pagination == nil {
		t.Fatal("missing pagination metadata")
	}
	if envelope.Meta.Pagination.Total != 3 || envelope.Meta.Pagination.Count != 2 {
		t.Errorf("pagination = %+v, want total 3 count 2 (default page size)", envelope.Meta.Pagination)
	}
	if !envelope.Meta.Pagination.HasMore {
		t.Error("expected has_more with a third signal beyond the page")
	}
}

func TestSignalsValidation(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token(t, "ops", auth.RoleAdmin)

	rec, envelope := ts.request(t, http.MethodGet, "/api/v1/signals?min_severity=9", adminToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want VALIDATION_FAILED", envelope.Error)
	}
}

func TestTrustSelfAccess(t *testing.T) {
	ts := newTestServer(t)

	own := ts.token(t, "sub-1", auth.RoleSubject)
	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/trust/sub-1", own, ""); rec.Code != http.StatusOK {
		t.Errorf("own record: status = %d, want 200", rec.Code)
	}
	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/trust/sub-2", own, ""); rec.Code != http.StatusForbidden {
		t.Errorf("other record: status = %d, want 403", rec.Code)
	}

	admin := ts.token(t, "ops", auth.RoleAdmin)
	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/trust/sub-1", admin, ""); rec.Code != http.StatusOK {
		t.Errorf("admin: status = %d, want 200", rec.Code)
	}
}

func TestRiskEndpoints(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, "ops", auth.RoleAdmin)

	rec, envelope := ts.request(t, http.MethodGet, "/api/v1/risk/sub-1", admin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, _ := json.Marshal(envelope.Data)
	var record risk.Record
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatal(err)
	}
	if record.Score != 62 || record.Level != risk.LevelHigh {
		t.Errorf("record = %+v", record)
	}

	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/risk/unknown", admin, ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing record: status = %d, want 404", rec.Code)
	}

	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/risk?min_score=50", admin, ""); rec.Code != http.StatusOK {
		t.Errorf("list: status = %d, want 200", rec.Code)
	}
	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/risk?min_score=200", admin, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range min_score: status = %d, want 400", rec.Code)
	}
}

func TestRankingsPublic(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.request(t, http.MethodGet, "/api/v1/rankings/2026-08-28/creators", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without a token", rec.Code)
	}

	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/rankings/2026-08-29/creators", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing snapshot: status = %d, want 404", rec.Code)
	}

	rec, envelope := ts.request(t, http.MethodGet, "/api/v1/rankings/not-a-date/creators", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestRecomputeAdminOnly(t *testing.T) {
	ts := newTestServer(t)

	subject := ts.token(t, "sub-1", auth.RoleSubject)
	if rec, _ := ts.request(t, http.MethodPost, "/api/v1/recompute/sub-1", subject, ""); rec.Code != http.StatusForbidden {
		t.Errorf("subject: status = %d, want 403", rec.Code)
	}

	admin := ts.token(t, "ops", auth.RoleAdmin)
	rec, _ := ts.request(t, http.MethodPost, "/api/v1/recompute/sub-9", admin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d", rec.Code)
	}

	ts.recompute.mu.Lock()
	defer ts.recompute.mu.Unlock()
	if len(ts.recompute.subjects) != 1 || ts.recompute.subjects[0] != "sub-9" {
		t.Errorf("recomputed = %v, want [sub-9]", ts.recompute.subjects)
	}
}

func TestDetectionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, "ops", auth.RoleAdmin)

	if rec, _ := ts.request(t, http.MethodGet, "/api/v1/detection/status", admin, ""); rec.Code != http.StatusOK {
		t.Errorf("status: %d, want 200", rec.Code)
	}

	rec, _ := ts.request(t, http.MethodPost, "/api/v1/detection/detectors/panic_spike", admin, `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status = %d", rec.Code)
	}
	if !ts.detection.disabled[signal.TypePanicSpike] {
		t.Error("detector not disabled")
	}

	if rec, _ := ts.request(t, http.MethodPost, "/api/v1/detection/detectors/nonsense", admin, `{"enabled":false}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown type: status = %d, want 404", rec.Code)
	}
}
