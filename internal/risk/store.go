// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/avedell/vigil/internal/kv"
)

// ErrNotFound is returned when a subject has no risk record yet.
var ErrNotFound = errors.New("risk: record not found")

const keyPrefix = "risk/"

// KVStore implements RecordStore on the shared Badger database. The
// merge-on-write update path makes concurrent recomputes for the same
// subject serialize instead of clobbering each other.
type KVStore struct {
	db *kv.DB
}

// NewKVStore creates a risk record store.
func NewKVStore(db *kv.DB) *KVStore {
	return &KVStore{db: db}
}

func recordKey(subjectID string) []byte {
	return []byte(keyPrefix + subjectID)
}

// Get returns the subject's risk record, or ErrNotFound.
func (s *KVStore) Get(_ context.Context, subjectID string) (*Record, error) {
	raw, err := s.db.Get(recordKey(subjectID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get risk record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode risk record: %w", err)
	}
	return &record, nil
}

// Put persists the record. The merge keeps the newest recompute: if a
// concurrent writer already stored a fresher record, the stale one is
// discarded rather than overwriting it.
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
		return fmt.Errorf("put risk record: %w", err)
	}
	return nil
}

// ListAbove returns all records with score >= minScore, highest score
// first with subject id as the tie-break.
func (s *KVStore) ListAbove(_ context.Context, minScore int) ([]Record, error) {
	var records []Record
	err := s.db.Scan([]byte(keyPrefix), func(_, value []byte) error {
		var record Record
		if err := json.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("decode risk record: %w", err)
		}
		if record.Score >= minScore {
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].SubjectID < records[j].SubjectID
	})
	return records, nil
}
