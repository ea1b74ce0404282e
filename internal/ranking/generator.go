// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package ranking builds immutable daily trust-score rankings per
// population. A snapshot is generated once per (date, population); the
// ordering is deterministic so regenerating from unchanged inputs always
// reproduces the same bytes.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/avedell/vigil/internal/logging"
	"github.com/avedell/vigil/internal/trust"
)

// TrustSource streams the trust records a snapshot ranks.
type TrustSource interface {
	All(ctx context.Context, fn func(trust.Record) error) error
}

// Membership decides whether a subject belongs to a ranking population.
type Membership interface {
	Contains(ctx context.Context, population, subjectID string) (bool, error)
}

// AllMembers is the default membership: every scored subject belongs to
// every population. Deployments with segmented populations plug in their
// own Membership.
type AllMembers struct{}

func (AllMembers) Contains(context.Context, string, string) (bool, error) {
	return true, nil
}

// SnapshotStore is the persistence surface the generator writes through.
type SnapshotStore interface {
	Get(ctx context.Context, date, population string) (*Snapshot, error)
	PutIfAbsent(ctx context.Context, snapshot *Snapshot) (bool, error)
}

// Generator produces ranking snapshots.
type Generator struct {
	trusts  TrustSource
	members Membership
	store   SnapshotStore
	now     func() time.Time
}

// NewGenerator creates a ranking generator. A nil membership ranks every
// subject in every population.
func NewGenerator(trusts TrustSource, members Membership, store SnapshotStore) *Generator {
	if members == nil {
		members = AllMembers{}
	}
	return &Generator{
		trusts:  trusts,
		members: members,
		store:   store,
		now:     time.Now,
	}
}

// Generate builds the snapshot for (date, population) and stores it.
// Snapshots are immutable: if one already exists for the key, it is
// returned unchanged and no write happens, so re-running the daily job
// is a no-op.
func (g *Generator) Generate(ctx context.Context, date, population string) (*Snapshot, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}

	if existing, err := g.store.Get(ctx, date, population); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	snapshot, err := g.build(ctx, date, population)
	if err != nil {
		return nil, err
	}

	created, err := g.store.PutIfAbsent(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	if !created {
		// A concurrent run won the write; serve its snapshot.
		return g.store.Get(ctx, date, population)
	}

	logging.Info().
		Str("date", date).
		Str("population", population).
		Int("entries", len(snapshot.Entries)).
		Msg("ranking snapshot generated")
	return snapshot, nil
}

// build assembles the ordered entry list from current trust records.
func (g *Generator) build(ctx context.Context, date, population string) (*Snapshot, error) {
	var entries []Entry
	err := g.trusts.All(ctx, func(record trust.Record) error {
		ok, err := g.members.Contains(ctx, population, record.SubjectID)
		if err != nil {
			return fmt.Errorf("membership %s/%s: %w", population, record.SubjectID, err)
		}
		if ok {
			entries = append(entries, Entry{SubjectID: record.SubjectID, Score: record.Score})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build ranking %s/%s: %w", date, population, err)
	}

	// Deterministic order: score descending, subject id ascending.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].SubjectID < entries[j].SubjectID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return &Snapshot{
		Date:        date,
		Population:  population,
		Entries:     entries,
		GeneratedAt: g.now().UTC(),
	}, nil
}
