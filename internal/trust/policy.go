// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package trust composes KPI-derived subscores and the risk score into a
// single composite trust score with a discrete tier. Like the risk
// record, the trust record is derived state.
package trust

import (
	"math"

	"github.com/avedell/vigil/internal/config"
)

// Policy holds the subscore weights and tier cutoffs, versioned alongside
// the risk policy so records can be traced to the rules that produced
// them.
type Policy struct {
	version           int
	qualityWeight     float64
	reliabilityWeight float64
	safetyWeight      float64
	payoutWeight      float64
	tierExcellent     int
	tierGood          int
	tierFair          int
}

// NewPolicy builds a Policy from validated configuration.
func NewPolicy(version int, cfg config.TrustPolicy) Policy {
	return Policy{
		version:           version,
		qualityWeight:     cfg.QualityWeight,
		reliabilityWeight: cfg.ReliabilityWeight,
		safetyWeight:      cfg.SafetyWeight,
		payoutWeight:      cfg.PayoutWeight,
		tierExcellent:     cfg.TierExcellent,
		tierGood:          cfg.TierGood,
		tierFair:          cfg.TierFair,
	}
}

// DefaultPolicy returns the policy built from the built-in defaults.
func DefaultPolicy() Policy {
	cfg := config.Default()
	return NewPolicy(cfg.Policy.Version, cfg.Policy.Trust)
}

// Version returns the policy version recorded on recomputed records.
func (p Policy) Version() int {
	return p.version
}

// Composite combines the four subscores into the weighted composite,
// clamped to [0,100].
func (p Policy) Composite(s Subscores) int {
	raw := p.qualityWeight*float64(s.Quality) +
		p.reliabilityWeight*float64(s.Reliability) +
		p.safetyWeight*float64(s.Safety) +
		p.payoutWeight*float64(s.Payout)
	return clampScore(raw)
}

// TierFor maps a composite score to its tier. Total over [0,100].
func (p Policy) TierFor(score int) Tier {
	switch {
	case score >= p.tierExcellent:
		return TierExcellent
	case score >= p.tierGood:
		return TierGood
	case score >= p.tierFair:
		return TierFair
	default:
		return TierNeedsImprovement
	}
}

func clampScore(raw float64) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return int(math.Round(raw))
}
