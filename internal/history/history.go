// Package history archives finished generations to SQLite. The
// in-memory job queue forgets evicted results; the archive keeps their
// metadata (never the pixels) so past prompts remain searchable across
// sessions.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Record is one archived generation.
type Record struct {
	JobID       string
	Prompt      string
	Negative    string
	Style       string
	Bounds      string
	ResultCount int
	ResultBytes int
	CreatedAt   time.Time
	FinishedAt  time.Time
}

// Store is the sqlite-backed archive. Safe for use from a single
// writer; reads may run concurrently thanks to WAL mode.
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive at path. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect archive: %w", err)
	}

	// SQLite supports one writer at a time; a single connection
	// avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add inserts one record. A duplicate job identifier is ignored, so
// re-delivered completions are harmless.
func (s *Store) Add(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO generations
			(job_id, prompt, negative, style, bounds, result_count, result_bytes, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Prompt, r.Negative, r.Style, r.Bounds,
		r.ResultCount, r.ResultBytes, r.CreatedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("archive generation %s: %w", r.JobID, err)
	}
	return nil
}

// List returns the most recently finished records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, prompt, negative, style, bounds, result_count, result_bytes, created_at, finished_at
		FROM generations
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.JobID, &r.Prompt, &r.Negative, &r.Style, &r.Bounds,
			&r.ResultCount, &r.ResultBytes, &r.CreatedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
