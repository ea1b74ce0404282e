// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package trust

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/avedell/vigil/internal/kv"
)

// ErrNotFound is returned when a subject has no trust record yet.
var ErrNotFound = errors.New("trust: record not found")

const keyPrefix = "trust/"

// KVStore implements RecordStore on the shared Badger database, with the
// same merge-on-write discipline as the risk store.
type KVStore struct {
	db *kv.DB
}

// NewKVStore creates a trust record store.
func NewKVStore(db *kv.DB) *KVStore {
	return &KVStore{db: db}
}

func recordKey(subjectID string) []byte {
	return []byte(keyPrefix + subjectID)
}

// Get returns the subject's trust record, or ErrNotFound.
func (s *KVStore) Get(_ context.Context, subjectID string) (*Record, error) {
	raw, err := s.db.Get(recordKey(subjectID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trust record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode trust record: %w", err)
	}
	return &record, nil
}

// Put persists the record, discarding it if a concurrent writer already
// stored a fresher one.
func (s *KVStore) Put(_ context.Context, record *Record) error {
	err := s.db.Merge(recordKey(record.SubjectID), func(current []byte) ([]byte, error) {
		if current != nil {
			var existing Record
			if err := json.Unmarshal(current, &existing); err == nil &&
				existing.RecalculatedAt.After(record.RecalculatedAt) {
				return current, nil
			}
		}
		return json.Marshal(record)
	})
	if err != nil {
		return fmt.Errorf("put trust record: %w", err)
	}
	return nil
}

// All streams every trust record to fn. The ranking generator uses this
// to build population snapshots.
func (s *KVStore) All(_ context.Context, fn func(Record) error) error {
	return s.db.Scan([]byte(keyPrefix), func(_, value []byte) error {
		var record Record
		if err := json.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("decode trust record: %w", err)
		}
		return fn(record)
	})
}
