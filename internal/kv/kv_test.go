// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package kv

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("", true)
	if err != nil {
		t.Fatalf("open in-memory kv: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetSetRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key error = %v, want ErrNotFound", err)
	}

	if err := db.Set([]byte("k"), []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v" {
		t.Errorf("Get = %q, want %q", got, "v")
	}
}

func TestSetIfAbsentFirstWriterWins(t *testing.T) {
	db := openTestDB(t)
	key := []byte("dedup/abc")

	inserted, err := db.SetIfAbsent(key, []byte("1"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Error("first SetIfAbsent should insert")
	}

	inserted, err = db.SetIfAbsent(key, []byte("2"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("second SetIfAbsent should not insert")
	}

	got, _ := db.Get(key)
	if string(got) != "1" {
		t.Errorf("value = %q, want first writer's %q", got, "1")
	}
}

func TestMergeCreatesAndTransforms(t *testing.T) {
	db := openTestDB(t)
	key := []byte("score/s1")

	err := db.Merge(key, func(current []byte) ([]byte, error) {
		if current != nil {
			t.Errorf("expected nil current on first merge, got %q", current)
		}
		return []byte("a"), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.Merge(key, func(current []byte) ([]byte, error) {
		return append(current, 'b'), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := db.Get(key)
	if string(got) != "ab" {
		t.Errorf("merged value = %q, want %q", got, "ab")
	}
}

func TestMergeConcurrentCountersDoNotLoseUpdates(t *testing.T) {
	db := openTestDB(t)
	key := []byte("counter")

	const writers = 8
	const increments = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				err := db.Merge(key, func(current []byte) ([]byte, error) {
					n := 0
					if current != nil {
						fmt.Sscanf(string(current), "%d", &n)
					}
					return []byte(fmt.Sprintf("%d", n+1)), nil
				})
				if err != nil {
					t.Errorf("merge: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := db.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	var n int
	fmt.Sscanf(string(got), "%d", &n)
	if n != writers*increments {
		t.Errorf("counter = %d, want %d (lost updates)", n, writers*increments)
	}
}

func TestMergePropagatesFnError(t *testing.T) {
	db := openTestDB(t)
	wantErr := errors.New("boom")

	err := db.Merge([]byte("k"), func([]byte) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Merge error = %v, want wrapped %v", err, wantErr)
	}
}

func TestScanPrefix(t *testing.T) {
	db := openTestDB(t)

	for _, k := range []string{"risk/a", "risk/b", "trust/a"} {
		if err := db.Set([]byte(k), []byte("v"), 0); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	err := db.Scan([]byte("risk/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "risk/a" || keys[1] != "risk/b" {
		t.Errorf("scan keys = %v", keys)
	}
}
