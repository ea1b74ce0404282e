// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package ranking

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/avedell/vigil/internal/kv"
)

const keyPrefix = "ranking/"

// KVStore persists ranking snapshots in the shared Badger database,
// keyed ranking/<date>/<population>. Snapshots are written at most once
// per key: first writer wins, later writes for the same key are no-ops.
type KVStore struct {
	db *kv.DB
}

// NewKVStore creates a snapshot store.
func NewKVStore(db *kv.DB) *KVStore {
	return &KVStore{db: db}
}

func snapshotKey(date, population string) []byte {
	return []byte(keyPrefix + date + "/" + population)
}

// Get returns the snapshot for a (date, population), or ErrNotFound.
func (s *KVStore) Get(_ context.Context, date, population string) (*Snapshot, error) {
	raw, err := s.db.Get(snapshotKey(date, population))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ranking snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode ranking snapshot: %w", err)
	}
	return &snapshot, nil
}

// PutIfAbsent stores the snapshot unless one already exists for its key.
// Returns true when this call created the snapshot.
func (s *KVStore) PutIfAbsent(_ context.Context, snapshot *Snapshot) (bool, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("encode ranking snapshot: %w", err)
	}
	created, err := s.db.SetIfAbsent(snapshotKey(snapshot.Date, snapshot.Population), raw, 0)
	if err != nil {
		return false, fmt.Errorf("put ranking snapshot: %w", err)
	}
	return created, nil
}
