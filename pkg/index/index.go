// Package index maintains a queryable per-day index of submission
// attempts and their terminal outcomes. The index is a derived view: it
// can always be rebuilt from the immutable artifacts and is therefore
// allowed to live in mutable storage.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotIndexed is returned when no attempt row matches a lookup.
var ErrNotIndexed = errors.New("index: attempt not indexed")

// Attempt is one indexed submission attempt.
type Attempt struct {
	SubmissionID string
	Day          string
	Boundary     string
	State        string
	RecordHash   string
	ArtifactPath string
	ReasonCodes  []string
}

// SubmissionIndex is the SQLite-backed attempt index.
type SubmissionIndex struct {
	db *sql.DB
}

// Open opens (creating if needed) the index database at path. Use
// ":memory:" for an ephemeral index.
func Open(path string) (*SubmissionIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	idx := &SubmissionIndex{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *SubmissionIndex) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS attempts (
		submission_id TEXT NOT NULL,
		day_utc TEXT NOT NULL,
		boundary TEXT NOT NULL,
		state TEXT NOT NULL,
		record_hash TEXT NOT NULL DEFAULT '',
		artifact_path TEXT NOT NULL DEFAULT '',
		reason_codes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (submission_id, day_utc, boundary)
	);
	CREATE INDEX IF NOT EXISTS attempts_by_day ON attempts (day_utc);`
	_, err := idx.db.ExecContext(context.Background(), query)
	return err
}

// RecordAttempt upserts one boundary outcome. Rebuilding the index from
// artifacts replays the same rows, so the upsert is idempotent.
func (idx *SubmissionIndex) RecordAttempt(ctx context.Context, a Attempt) error {
	if a.SubmissionID == "" || a.Day == "" || a.Boundary == "" {
		return fmt.Errorf("index: attempt requires submission_id, day, boundary")
	}
	query := `INSERT INTO attempts (
		submission_id, day_utc, boundary, state, record_hash, artifact_path, reason_codes
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (submission_id, day_utc, boundary) DO UPDATE SET
		state = excluded.state,
		record_hash = excluded.record_hash,
		artifact_path = excluded.artifact_path,
		reason_codes = excluded.reason_codes`
	_, err := idx.db.ExecContext(ctx, query,
		a.SubmissionID, a.Day, a.Boundary, a.State, a.RecordHash, a.ArtifactPath, joinCodes(a.ReasonCodes))
	if err != nil {
		return fmt.Errorf("index: record attempt: %w", err)
	}
	return nil
}

// Attempts returns every indexed attempt for a day in a stable order.
func (idx *SubmissionIndex) Attempts(ctx context.Context, day string) ([]Attempt, error) {
	query := `
		SELECT submission_id, day_utc, boundary, state, record_hash, artifact_path, reason_codes
		FROM attempts
		WHERE day_utc = ?
		ORDER BY submission_id, boundary`
	rows, err := idx.db.QueryContext(ctx, query, day)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the indexed outcome for one submission at one boundary.
func (idx *SubmissionIndex) Get(ctx context.Context, submissionID, day, boundary string) (*Attempt, error) {
	query := `
		SELECT submission_id, day_utc, boundary, state, record_hash, artifact_path, reason_codes
		FROM attempts
		WHERE submission_id = ? AND day_utc = ? AND boundary = ?`
	row := idx.db.QueryRowContext(ctx, query, submissionID, day, boundary)
	var a Attempt
	var codes string
	err := row.Scan(&a.SubmissionID, &a.Day, &a.Boundary, &a.State, &a.RecordHash, &a.ArtifactPath, &codes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrNotIndexed, day, submissionID, boundary)
		}
		return nil, err
	}
	a.ReasonCodes = splitCodes(codes)
	return &a, nil
}

func (idx *SubmissionIndex) Close() error {
	return idx.db.Close()
}

func scanAttempt(rows *sql.Rows) (Attempt, error) {
	var a Attempt
	var codes string
	if err := rows.Scan(&a.SubmissionID, &a.Day, &a.Boundary, &a.State, &a.RecordHash, &a.ArtifactPath, &codes); err != nil {
		return Attempt{}, err
	}
	a.ReasonCodes = splitCodes(codes)
	return a, nil
}

func joinCodes(codes []string) string {
	return strings.Join(codes, "\n")
}

func splitCodes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
