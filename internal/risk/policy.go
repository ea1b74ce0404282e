// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package risk aggregates a subject's signal history into a bounded,
// time-decayed risk score. The score record is a cache: it is always
// fully reproducible by replaying the history through the policy.
package risk

import (
	"math"
	"time"

	"github.com/avedell/vigil/internal/config"
)

// Policy is the versioned scoring policy: the severity→points curve, the
// decay schedule, and the level thresholds. It is constructed from
// configuration so the curve can be tuned without a rebuild.
type Policy struct {
	version        int
	severityPoints []float64
	fullWeight     time.Duration
	halfWeight     time.Duration
	halfLife       time.Duration
	floor          float64
	levelMedium    int
	levelHigh      int
	levelCritical  int
}

// NewPolicy builds a Policy from validated configuration.
func NewPolicy(version int, cfg config.RiskPolicy) Policy {
	points := make([]float64, len(cfg.SeverityPoints))
	copy(points, cfg.SeverityPoints)
	return Policy{
		version:        version,
		severityPoints: points,
		fullWeight:     time.Duration(cfg.FullWeightDays) * 24 * time.Hour,
		halfWeight:     time.Duration(cfg.HalfWeightDays) * 24 * time.Hour,
		halfLife:       time.Duration(cfg.DecayHalfLifeDays) * 24 * time.Hour,
		floor:          cfg.DecayFloor,
		levelMedium:    cfg.LevelMedium,
		levelHigh:      cfg.LevelHigh,
		levelCritical:  cfg.LevelCritical,
	}
}

// DefaultPolicy returns the policy built from the built-in defaults.
func DefaultPolicy() Policy {
	cfg := config.Default()
	return NewPolicy(cfg.Policy.Version, cfg.Policy.Risk)
}

// Version returns the policy version recorded on recomputed records.
func (p Policy) Version() int {
	return p.version
}

// Points returns the point value for a severity. Severities outside
// [1,5] clamp to the nearest bound; stores reject them on append, so
// this is belt-and-braces for replayed history.
func (p Policy) Points(severity int) float64 {
	if severity < 1 {
		severity = 1
	}
	if severity > len(p.severityPoints) {
		severity = len(p.severityPoints)
	}
	return p.severityPoints[severity-1]
}

// DecayWeight returns the age-based weight multiplier in [floor, 1].
// Full weight under the full-weight window, half weight up to the
// half-weight window, then an exponential tail toward the floor.
// The weight is non-increasing in age, which is what makes older
// evidence never count more than newer evidence of equal severity.
func (p Policy) DecayWeight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	switch {
	case age < p.fullWeight:
		return 1.0
	case age < p.halfWeight:
		return 0.5
	default:
		tail := 0.5 * math.Pow(0.5, float64(age-p.halfWeight)/float64(p.halfLife))
		return math.Max(p.floor, tail)
	}
}

// LevelFor maps a clamped score to its discrete level. Total over
// [0,100] by construction.
func (p Policy) LevelFor(score int) Level {
	switch {
	case score >= p.levelCritical:
		return LevelCritical
	case score >= p.levelHigh:
		return LevelHigh
	case score >= p.levelMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// clampScore bounds a raw weighted sum to the [0,100] score range.
func clampScore(raw float64) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return int(math.Round(raw))
}
