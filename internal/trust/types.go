// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package trust

import "time"

// Tier is the discrete trust classification derived from the composite
// score.
type Tier string

const (
	TierExcellent        Tier = "EXCELLENT"
	TierGood             Tier = "GOOD"
	TierFair             Tier = "FAIR"
	TierNeedsImprovement Tier = "NEEDS_IMPROVEMENT"
)

// Subscores are the four bounded component scores that feed the
// composite. Each is [0,100].
type Subscores struct {
	Quality     int `json:"quality"`
	Reliability int `json:"reliability"`
	Safety      int `json:"safety"`
	Payout      int `json:"payout"`
}

// Record is the per-subject trust score document.
type Record struct {
	SubjectID      string    `json:"subject_id"`
	Score          int       `json:"score"` // 0-100
	Tier           Tier      `json:"tier"`
	Subscores      Subscores `json:"subscores"`
	PolicyVersion  int       `json:"policy_version"`
	RecalculatedAt time.Time `json:"recalculated_at"`
}
