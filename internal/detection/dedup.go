// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package detection

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/avedell/vigil/internal/cache"
	"github.com/avedell/vigil/internal/kv"
	"github.com/avedell/vigil/internal/signal"
)

const dedupPrefix = "dedup/"

// lruCapacity bounds the in-memory dedup front. Sized for the working
// set of active subjects, not the full TTL'd keyspace; Badger holds the
// durable truth.
const lruCapacity = 50000

// Deduper suppresses re-emission of an identical signal for the same
// abuse episode. The idempotency key is a BLAKE2b-128 digest of
// (subject, type, window bucket), checked against an in-memory LRU
// first and then claimed in Badger with a TTL'd set-if-absent, so the
// suppression survives restarts.
type Deduper struct {
	lru *cache.LRU
	db  *kv.DB
	ttl time.Duration
}

// NewDeduper creates a deduper whose keys expire after ttl. The ttl must
// cover the widest detector window or an episode could re-emit after its
// key expires mid-window.
func NewDeduper(db *kv.DB, ttl time.Duration) *Deduper {
	return &Deduper{
		lru: cache.NewLRU(lruCapacity, ttl),
		db:  db,
		ttl: ttl,
	}
}

// dedupKey derives the stable idempotency key. The window bucket is the
// event time truncated to the detector window, so every event in one
// episode maps to the same key.
func dedupKey(subjectID string, typ signal.Type, at time.Time, window time.Duration) string {
	bucket := at.Truncate(window).Unix()

	h, err := blake2b.New(16, nil)
	if err != nil {
		// Unkeyed blake2b construction cannot fail.
		panic(err)
	}
	h.Write([]byte(subjectID))
	h.Write([]byte{0})
	h.Write([]byte(typ))
	h.Write([]byte{0})
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(bucket))
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil))
}

// FirstEmission reports whether this (subject, type, bucket) episode has
// not yet produced a signal, claiming the key if so. Exactly one caller
// per episode gets true.
func (d *Deduper) FirstEmission(subjectID string, typ signal.Type, at time.Time, window time.Duration) (bool, error) {
	key := dedupKey(subjectID, typ, at, window)

	if d.lru.Seen(key) {
		return false, nil
	}

	claimed, err := d.db.SetIfAbsent([]byte(dedupPrefix+key), []byte{1}, d.ttl)
	if err != nil {
		return false, fmt.Errorf("claim dedup key: %w", err)
	}
	return claimed, nil
}

// Stats returns the LRU front's hit/miss counters and size.
func (d *Deduper) Stats() (hits, misses int64, size int) {
	return d.lru.Stats()
}
