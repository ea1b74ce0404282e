// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package risk

import (
	"time"

	"github.com/avedell/vigil/internal/signal"
)

// Level is the discrete risk classification derived from the score.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Record is the per-subject risk score document. It is derived state:
// recomputing from the same signal history always reproduces it (modulo
// RecalculatedAt).
type Record struct {
	SubjectID      string              `json:"subject_id"`
	Score          int                 `json:"score"` // 0-100
	Level          Level               `json:"level"`
	SignalCounts   map[signal.Type]int `json:"signal_counts"`
	LastSignalAt   *time.Time          `json:"last_signal_at,omitempty"`
	PolicyVersion  int                 `json:"policy_version"`
	RecalculatedAt time.Time           `json:"recalculated_at"`
}
