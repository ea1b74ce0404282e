// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/avedell/vigil/internal/kv"
)

const checkpointPrefix = "checkpoint/"

// Outcome classifies how a job run ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDeadline Outcome = "deadline"
	OutcomeError    Outcome = "error"
)

// Checkpoint is a job's persisted progress marker. Cursor is the last
// subject a deadline-stopped sweep completed; the next run resumes after
// it. A successful run clears the cursor.
type Checkpoint struct {
	Job         string    `json:"job"`
	LastRun     time.Time `json:"last_run"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	Cursor      string    `json:"cursor,omitempty"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
}

// CheckpointStore persists job checkpoints in the shared Badger database.
type CheckpointStore struct {
	db *kv.DB
}

// NewCheckpointStore creates a checkpoint store.
func NewCheckpointStore(db *kv.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Load returns the checkpoint for a job. A job that never ran gets a
// zero checkpoint, not an error.
func (s *CheckpointStore) Load(job string) (Checkpoint, error) {
	raw, err := s.db.Get([]byte(checkpointPrefix + job))
	if errors.Is(err, kv.ErrNotFound) {
		return Checkpoint{Job: job}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", job, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", job, err)
	}
	return cp, nil
}

// Save persists a checkpoint.
func (s *CheckpointStore) Save(cp Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", cp.Job, err)
	}
	if err := s.db.Set([]byte(checkpointPrefix+cp.Job), raw, 0); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Job, err)
	}
	return nil
}
