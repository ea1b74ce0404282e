// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avedell/vigil/internal/signal"
)

// mockHistory implements History for testing.
type mockHistory struct {
	signals map[string][]signal.Signal
	err     error
}

func (m *mockHistory) History(_ context.Context, subjectID string) ([]signal.Signal, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.signals[subjectID], nil
}

// mockRecordStore implements RecordStore for testing.
type mockRecordStore struct {
	records map[string]*Record
	mu      sync.Mutex
}

func newMockRecordStore() *mockRecordStore {
	return &mockRecordStore{records: make(map[string]*Record)}
}

func (m *mockRecordStore) Get(_ context.Context, subjectID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[subjectID]; ok {
		return r, nil
	}
	return nil, ErrNotFound
}

func (m *mockRecordStore) Put(_ context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.SubjectID] = record
	return nil
}

func sigAt(subjectID string, severity int, age time.Duration, now time.Time) signal.Signal {
	return signal.Signal{
		ID:         "sig",
		SubjectID:  subjectID,
		Source:     signal.SourceMessaging,
		Type:       signal.TypeCopyPaste,
		Severity:   severity,
		DetectedAt: now.Add(-age),
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	history := &mockHistory{signals: map[string][]signal.Signal{
		"s1": {
			sigAt("s1", 3, 24*time.Hour, now),
			sigAt("s1", 5, 40*24*time.Hour, now),
			sigAt("s1", 1, 90*24*time.Hour, now),
		},
	}}
	store := newMockRecordStore()
	agg := NewAggregator(history, store, DefaultPolicy())
	agg.now = func() time.Time { return now }

	first, err := agg.Recompute(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := agg.Recompute(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}

	if first.Score != second.Score {
		t.Errorf("recompute not idempotent: %d != %d", first.Score, second.Score)
	}
	if first.Level != second.Level {
		t.Errorf("level not idempotent: %s != %s", first.Level, second.Level)
	}
}

func TestScoreBoundedAndLevelTotal(t *testing.T) {
	now := time.Now()
	agg := NewAggregator(nil, nil, DefaultPolicy())

	// Enough critical signals to overflow the raw sum.
	var signals []signal.Signal
	for i := 0; i < 50; i++ {
		signals = append(signals, sigAt("s", 5, time.Hour, now))
	}

	record := agg.Score("s", signals, now)
	if record.Score < 0 || record.Score > 100 {
		t.Errorf("score %d out of [0,100]", record.Score)
	}
	if record.Score != 100 {
		t.Errorf("50 fresh severity-5 signals should clamp to 100, got %d", record.Score)
	}
	if record.Level != LevelCritical {
		t.Errorf("level = %s, want CRITICAL", record.Level)
	}

	empty := agg.Score("s", nil, now)
	if empty.Score != 0 || empty.Level != LevelLow {
		t.Errorf("empty history: score %d level %s, want 0 LOW", empty.Score, empty.Level)
	}
	if empty.LastSignalAt != nil {
		t.Error("empty history should have no last signal time")
	}
}

func TestDecayIsMonotonic(t *testing.T) {
	policy := DefaultPolicy()

	ages := []time.Duration{
		0,
		10 * 24 * time.Hour,
		29 * 24 * time.Hour,
		30 * 24 * time.Hour,
		45 * 24 * time.Hour,
		60 * 24 * time.Hour,
		90 * 24 * time.Hour,
		180 * 24 * time.Hour,
		720 * 24 * time.Hour,
	}

	prev := policy.DecayWeight(ages[0])
	if prev != 1.0 {
		t.Errorf("fresh signal weight = %v, want 1.0", prev)
	}
	for _, age := range ages[1:] {
		weight := policy.DecayWeight(age)
		if weight > prev {
			t.Errorf("decay not monotonic: weight(%v) = %v > %v", age, weight, prev)
		}
		if weight < 0.10 {
			t.Errorf("weight(%v) = %v below floor 0.10", age, weight)
		}
		prev = weight
	}

	if w := policy.DecayWeight(45 * 24 * time.Hour); w != 0.5 {
		t.Errorf("30-60 day weight = %v, want 0.5", w)
	}
}

func TestFiveRecentSeverityThreeSignals(t *testing.T) {
	// Five severity-3 signals within 7 days: 5 * 10 points at full
	// weight = 50, level HIGH (and at least MEDIUM per the contract).
	now := time.Now()
	agg := NewAggregator(nil, nil, DefaultPolicy())

	var signals []signal.Signal
	for i := 0; i < 5; i++ {
		signals = append(signals, sigAt("s", 3, time.Duration(i)*24*time.Hour, now))
	}

	record := agg.Score("s", signals, now)
	if record.Score < 50 {
		t.Errorf("score = %d, want >= 50", record.Score)
	}
	if record.Level == LevelLow {
		t.Errorf("level = %s, want at least MEDIUM", record.Level)
	}
}

func TestLevelThresholds(t *testing.T) {
	policy := DefaultPolicy()
	tests := []struct {
		score int
		want  Level
	}{
		{0, LevelLow},
		{14, LevelLow},
		{15, LevelMedium},
		{34, LevelMedium},
		{35, LevelHigh},
		{69, LevelHigh},
		{70, LevelCritical},
		{100, LevelCritical},
	}
	for _, tt := range tests {
		if got := policy.LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestRecomputeLeavesRecordOnHistoryError(t *testing.T) {
	now := time.Now()
	store := newMockRecordStore()
	store.records["s1"] = &Record{SubjectID: "s1", Score: 42, Level: LevelHigh, RecalculatedAt: now}

	history := &mockHistory{err: errors.New("store unreachable")}
	agg := NewAggregator(history, store, DefaultPolicy())

	if _, err := agg.Recompute(context.Background(), "s1"); err == nil {
		t.Fatal("expected error from failed history read")
	}

	// Previous record untouched: stale-but-valid.
	record, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Score != 42 {
		t.Errorf("record score = %d, want untouched 42", record.Score)
	}
}

func TestSignalCounts(t *testing.T) {
	now := time.Now()
	agg := NewAggregator(nil, nil, DefaultPolicy())

	signals := []signal.Signal{
		{SubjectID: "s", Type: signal.TypeCopyPaste, Severity: 2, DetectedAt: now},
		{SubjectID: "s", Type: signal.TypeCopyPaste, Severity: 2, DetectedAt: now},
		{SubjectID: "s", Type: signal.TypePayoutAbuse, Severity: 4, DetectedAt: now},
	}

	record := agg.Score("s", signals, now)
	if record.SignalCounts[signal.TypeCopyPaste] != 2 {
		t.Errorf("copy_paste count = %d, want 2", record.SignalCounts[signal.TypeCopyPaste])
	}
	if record.SignalCounts[signal.TypePayoutAbuse] != 1 {
		t.Errorf("payout_abuse count = %d, want 1", record.SignalCounts[signal.TypePayoutAbuse])
	}
}
