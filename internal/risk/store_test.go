// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avedell/vigil/internal/kv"
)

func openTestStore(t *testing.T) *KVStore {
	t.Helper()
	db, err := kv.Open("", true)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewKVStore(db)
}

func TestKVStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing record error = %v, want ErrNotFound", err)
	}

	record := &Record{
		SubjectID:      "s1",
		Score:          37,
		Level:          LevelHigh,
		RecalculatedAt: time.Now().UTC(),
	}
	if err := store.Put(ctx, record); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 37 || got.Level != LevelHigh {
		t.Errorf("got %+v", got)
	}
}

func TestKVStoreDiscardsStaleWrite(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now().UTC()

	fresh := &Record{SubjectID: "s1", Score: 50, Level: LevelHigh, RecalculatedAt: now}
	stale := &Record{SubjectID: "s1", Score: 10, Level: LevelLow, RecalculatedAt: now.Add(-time.Hour)}

	if err := store.Put(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, stale); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 50 {
		t.Errorf("stale write overwrote fresh record: score = %d, want 50", got.Score)
	}
}

func TestListAboveOrdering(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now().UTC()

	for _, record := range []*Record{
		{SubjectID: "charlie", Score: 80, Level: LevelCritical, RecalculatedAt: now},
		{SubjectID: "alice", Score: 80, Level: LevelCritical, RecalculatedAt: now},
		{SubjectID: "bob", Score: 40, Level: LevelHigh, RecalculatedAt: now},
		{SubjectID: "dave", Score: 5, Level: LevelLow, RecalculatedAt: now},
	} {
		if err := store.Put(ctx, record); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.ListAbove(ctx, 35)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records above 35, got %d", len(records))
	}

	// Score descending, subject id ascending on ties.
	want := []string{"alice", "charlie", "bob"}
	for i, w := range want {
		if records[i].SubjectID != w {
			t.Errorf("records[%d] = %s, want %s", i, records[i].SubjectID, w)
		}
	}
}
