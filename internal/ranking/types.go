// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

package ranking

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no snapshot exists for a (date,
// population) pair.
var ErrNotFound = errors.New("ranking: snapshot not found")

// DateFormat is the canonical snapshot date encoding.
const DateFormat = "2006-01-02"

// Entry is one subject's position in a snapshot. Rank is 1-based and
// dense (ties still consume ranks, ordering settles them).
type Entry struct {
	SubjectID string `json:"subject_id"`
	Rank      int    `json:"rank"`
	Score     int    `json:"score"`
}

// Snapshot is an immutable daily ranking for one population. Entries are
// ordered score descending, subject id ascending on ties, so the same
// inputs always encode to the same bytes.
type Snapshot struct {
	Date        string    `json:"date"` // YYYY-MM-DD
	Population  string    `json:"population"`
	Entries     []Entry   `json:"entries"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ValidateDate checks a snapshot date string.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateFormat, date); err != nil {
		return fmt.Errorf("ranking: invalid date %q: %w", date, err)
	}
	return nil
}
