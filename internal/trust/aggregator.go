// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package trust

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/avedell/vigil/internal/metrics"
	"github.com/avedell/vigil/internal/risk"
)

// RiskReader is the slice of the risk store the safety subscore reads.
type RiskReader interface {
	Get(ctx context.Context, subjectID string) (*risk.Record, error)
}

// RecordStore persists trust records.
type RecordStore interface {
	Get(ctx context.Context, subjectID string) (*Record, error)
	Put(ctx context.Context, record *Record) error
}

// Aggregator recomputes trust records from KPI snapshots and the risk
// score.
type Aggregator struct {
	sources *guardedSources
	risks   RiskReader
	store   RecordStore
	policy  Policy
	now     func() time.Time
}

// NewAggregator creates a trust aggregator. Each KPI source is guarded
// by its own circuit breaker.
func NewAggregator(sources Sources, risks RiskReader, store RecordStore, policy Policy) *Aggregator {
	return &Aggregator{
		sources: newGuardedSources(sources),
		risks:   risks,
		store:   store,
		policy:  policy,
		now:     time.Now,
	}
}

// kpiSnapshot is the full set of inputs to one scoring pass.
type kpiSnapshot struct {
	sessions   SessionKPIs
	bookings   BookingKPIs
	payouts    PayoutKPIs
	moderation ModerationKPIs
	riskScore  int
}

// Recompute reads the KPI snapshot and the risk score, scores the
// subject, and persists the record. If any KPI source fails (or its
// breaker is open) the previous record is left untouched and the error
// is surfaced so the next sweep retries: stale-but-valid.
func (a *Aggregator) Recompute(ctx context.Context, subjectID string) (*Record, error) {
	start := a.now()
	defer func() {
		metrics.RecomputeDuration.WithLabelValues("trust").Observe(time.Since(start).Seconds())
	}()

	snapshot, err := a.snapshot(ctx, subjectID)
	if err != nil {
		metrics.RecomputeErrors.WithLabelValues("trust").Inc()
		return nil, fmt.Errorf("trust recompute %s: %w", subjectID, err)
	}

	record := a.score(subjectID, snapshot, start)
	if err := a.store.Put(ctx, record); err != nil {
		metrics.RecomputeErrors.WithLabelValues("trust").Inc()
		return nil, fmt.Errorf("trust recompute %s: persist: %w", subjectID, err)
	}
	return record, nil
}

func (a *Aggregator) snapshot(ctx context.Context, subjectID string) (kpiSnapshot, error) {
	var snap kpiSnapshot
	var err error

	if snap.sessions, err = a.sources.SessionKPIs(ctx, subjectID); err != nil {
		return snap, fmt.Errorf("session KPIs: %w", err)
	}
	if snap.bookings, err = a.sources.BookingKPIs(ctx, subjectID); err != nil {
		return snap, fmt.Errorf("booking KPIs: %w", err)
	}
	if snap.payouts, err = a.sources.PayoutKPIs(ctx, subjectID); err != nil {
		return snap, fmt.Errorf("payout KPIs: %w", err)
	}
	if snap.moderation, err = a.sources.ModerationKPIs(ctx, subjectID); err != nil {
		return snap, fmt.Errorf("moderation KPIs: %w", err)
	}

	riskRecord, err := a.risks.Get(ctx, subjectID)
	switch {
	case errors.Is(err, risk.ErrNotFound):
		// No risk record means no signals: a clean subject.
		snap.riskScore = 0
	case err != nil:
		return snap, fmt.Errorf("risk record: %w", err)
	default:
		snap.riskScore = riskRecord.Score
	}
	return snap, nil
}

func (a *Aggregator) score(subjectID string, snap kpiSnapshot, asOf time.Time) *Record {
	subscores := Subscores{
		Quality:     qualityScore(snap.sessions),
		Reliability: reliabilityScore(snap.bookings),
		Safety:      safetyScore(snap.riskScore, snap.moderation),
		Payout:      payoutScore(snap.payouts),
	}
	composite := a.policy.Composite(subscores)
	return &Record{
		SubjectID:      subjectID,
		Score:          composite,
		Tier:           a.policy.TierFor(composite),
		Subscores:      subscores,
		PolicyVersion:  a.policy.Version(),
		RecalculatedAt: asOf.UTC(),
	}
}

// neutralScore is used when a subject has no history to judge by: new
// subjects start mid-scale rather than at either extreme.
const neutralScore = 50

// qualityScore maps the average session rating onto [0,100]. Unrated
// subjects score neutral.
func qualityScore(k SessionKPIs) int {
	if k.RatedSessions == 0 {
		return neutralScore
	}
	return clampSub(k.AvgRating / 5.0 * 100)
}

// reliabilityScore is the completion rate over bookings, counting
// creator cancellations and refunds against the subject.
func reliabilityScore(k BookingKPIs) int {
	total := k.Completed + k.CreatorCancellations + k.Refunds
	if total == 0 {
		return neutralScore
	}
	return clampSub(float64(k.Completed) / float64(total) * 100)
}

// safetyScore inverts the risk score and subtracts a flat penalty per
// confirmed moderation violation.
func safetyScore(riskScore int, k ModerationKPIs) int {
	return clampSub(float64(100-riskScore) - 10*float64(k.ConfirmedViolations))
}

// payoutScore is the payout success rate with a penalty per chargeback.
func payoutScore(k PayoutKPIs) int {
	if k.Attempts == 0 {
		return neutralScore
	}
	rate := float64(k.Succeeded) / float64(k.Attempts) * 100
	return clampSub(rate - 15*float64(k.Chargebacks))
}

func clampSub(raw float64) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return int(math.Round(raw))
}
