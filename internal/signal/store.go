// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package signal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/avedell/vigil/internal/logging"
)

// DuckDBStore implements Store on a DuckDB database. Signals are written
// once and never updated, which makes unbounded concurrent writers safe.
type DuckDBStore struct {
	db *sql.DB
}

const signalSchema = `
CREATE TABLE IF NOT EXISTS signals (
	id          VARCHAR PRIMARY KEY,
	subject_id  VARCHAR NOT NULL,
	source      VARCHAR NOT NULL,
	signal_type VARCHAR NOT NULL,
	severity    INTEGER NOT NULL CHECK (severity BETWEEN 1 AND 5),
	context_ref VARCHAR,
	detected_at TIMESTAMP NOT NULL,
	metadata    VARCHAR
);
CREATE INDEX IF NOT EXISTS idx_signals_subject_time ON signals (subject_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_signals_detected_at ON signals (detected_at);
`

// OpenDuckDB opens (or creates) the signal database at path.
// Pass ":memory:" for an ephemeral database in tests.
func OpenDuckDB(path string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open signal store: %w", err)
	}
	if _, err := db.Exec(signalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init signal schema: %w", err)
	}
	return &DuckDBStore{db: db}, nil
}

// NewDuckDBStore wraps an existing connection, creating the schema if needed.
func NewDuckDBStore(db *sql.DB) (*DuckDBStore, error) {
	if _, err := db.Exec(signalSchema); err != nil {
		return nil, fmt.Errorf("init signal schema: %w", err)
	}
	return &DuckDBStore{db: db}, nil
}

// Close closes the underlying database.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

// Ping probes the database, used by the readiness endpoint.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append persists a new signal. The ID is assigned if empty.
func (s *DuckDBStore) Append(ctx context.Context, sig *Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (id, subject_id, source, signal_type, severity, context_ref, detected_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.SubjectID, string(sig.Source), string(sig.Type),
		sig.Severity, sig.ContextRef, sig.DetectedAt.UTC(), string(sig.Metadata),
	)
	if err != nil {
		return fmt.Errorf("append signal: %w", err)
	}
	return nil
}

// buildWhere translates a Filter into a WHERE clause and its arguments.
func buildWhere(filter Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.SubjectID != "" {
		clauses = append(clauses, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if len(filter.Sources) > 0 {
		placeholders := make([]string, len(filter.Sources))
		for i, src := range filter.Sources {
			placeholders[i] = "?"
			args = append(args, string(src))
		}
		clauses = append(clauses, "source IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, "signal_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.MinSeverity > 0 {
		clauses = append(clauses, "severity >= ?")
		args = append(args, filter.MinSeverity)
	}
	if filter.Start != nil {
		clauses = append(clauses, "detected_at >= ?")
		args = append(args, filter.Start.UTC())
	}
	if filter.End != nil {
		clauses = append(clauses, "detected_at <= ?")
		args = append(args, filter.End.UTC())
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const signalSelectColumns = `id, subject_id, source, signal_type, severity,
	COALESCE(context_ref, ''), detected_at, COALESCE(metadata, '')`

func scanSignal(scanner interface{ Scan(dest ...interface{}) error }, sig *Signal) error {
	var source, sigType, metadata string
	if err := scanner.Scan(
		&sig.ID, &sig.SubjectID, &source, &sigType,
		&sig.Severity, &sig.ContextRef, &sig.DetectedAt, &metadata,
	); err != nil {
		return err
	}
	sig.Source = Source(source)
	sig.Type = Type(sigType)
	if metadata != "" {
		sig.Metadata = []byte(metadata)
	}
	return nil
}

// List retrieves signals matching the filter, newest first.
func (s *DuckDBStore) List(ctx context.Context, filter Filter) ([]Signal, error) {
	where, args := buildWhere(filter)

	query := "SELECT " + signalSelectColumns + " FROM signals" + where +
		" ORDER BY detected_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var sig Signal
		if err := scanSignal(rows, &sig); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// Count returns the number of signals matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := buildWhere(filter)

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM signals"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}
	return count, nil
}

// History retrieves a subject's full signal history, newest first.
func (s *DuckDBStore) History(ctx context.Context, subjectID string) ([]Signal, error) {
	return s.List(ctx, Filter{SubjectID: subjectID})
}

// CountsByType returns per-type signal counts for a subject.
func (s *DuckDBStore) CountsByType(ctx context.Context, subjectID string) (map[Type]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT signal_type, COUNT(*) FROM signals WHERE subject_id = ? GROUP BY signal_type`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("counts by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[Type]int)
	for rows.Next() {
		var sigType string
		var count int
		if err := rows.Scan(&sigType, &count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		counts[Type(sigType)] = count
	}
	return counts, rows.Err()
}

// ActiveSubjects returns subject IDs with at least one signal since the
// given time, ordered for deterministic batch processing.
func (s *DuckDBStore) ActiveSubjects(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT subject_id FROM signals WHERE detected_at >= ? ORDER BY subject_id`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("active subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, id)
	}
	return subjects, rows.Err()
}

// PruneOlderThan deletes signals detected before the cutoff.
func (s *DuckDBStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM signals WHERE detected_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune signals: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // the delete succeeded, the count is best-effort
	}
	if removed > 0 {
		logging.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned expired signals")
	}
	return removed, nil
}
