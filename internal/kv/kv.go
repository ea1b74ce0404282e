// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package kv wraps BadgerDB with the small keyed-storage surface the
// engine needs: plain get/set, TTL'd set-if-absent for idempotency keys,
// and a transactional merge-on-write that makes concurrent updates to the
// same key safe (optimistic CAS with conflict retry).
package kv

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/avedell/vigil/internal/logging"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// conflictRetries bounds the merge-on-write retry loop. Conflicts are
// rare (two recomputes for the same subject racing), so a handful of
// retries is plenty.
const conflictRetries = 5

// DB is a Badger-backed keyed store.
type DB struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database at dir. If inMemory is set,
// dir is ignored and an ephemeral store is used (tests, dev mode).
func Open(dir string, inMemory bool) (*DB, error) {
	opts := badger.DefaultOptions(dir).
		WithInMemory(inMemory).
		WithLogger(badgerLogger{})
	if inMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Get returns the value for key, or ErrNotFound.
func (d *DB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get: %w", err)
	}
	return value, nil
}

// Set stores value under key. A non-zero ttl expires the entry.
func (d *DB) Set(key, value []byte, ttl time.Duration) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	return nil
}

// SetIfAbsent stores value under key only if the key does not already
// exist (expired entries count as absent). Returns true if the write
// happened. This is the idempotency-key primitive: the first caller wins,
// every redundant caller sees false.
func (d *DB) SetIfAbsent(key, value []byte, ttl time.Duration) (bool, error) {
	var inserted bool
	err := d.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			inserted = false
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		entry := badger.NewEntry(key, value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("kv set-if-absent: %w", err)
	}
	return inserted, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(key []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// Merge atomically transforms the value under key. fn receives the
// current value (nil if absent) and returns the replacement. On write
// conflict the transaction is retried against the fresh value, so
// concurrent merges for the same key serialize instead of losing
// updates. This is the single-writer-per-key discipline for score
// records.
func (d *DB) Merge(key []byte, fn func(current []byte) ([]byte, error)) error {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err := d.db.Update(func(txn *badger.Txn) error {
			var current []byte
			item, err := txn.Get(key)
			switch {
			case err == nil:
				current, err = item.ValueCopy(nil)
				if err != nil {
					return err
				}
			case errors.Is(err, badger.ErrKeyNotFound):
				current = nil
			default:
				return err
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			return txn.Set(key, next)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("kv merge: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("kv merge: conflict retries exhausted: %w", lastErr)
}

// Scan iterates all keys under prefix in lexicographic order, invoking fn
// with each key and value. Returning an error from fn stops the scan.
func (d *DB) Scan(prefix []byte, fn func(key, value []byte) error) error {
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kv scan: %w", err)
	}
	return nil
}

// RunGC runs Badger's value log garbage collection once. Called
// periodically by the retention job; ErrNoRewrite (nothing to collect)
// is not an error.
func (d *DB) RunGC() {
	if err := d.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		logging.Warn().Err(err).Msg("badger value log GC failed")
	}
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}
