package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
)

func (s Status) Valid() bool {
	return s == StatusProcessed || s == StatusSkipped
}

// Entry records what happened to one source file.
type Entry struct {
	File      string    `json:"file"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

var ErrInvalidEntry = errors.New("invalid progress entry")

// Store keeps the processed/skipped log in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS progress (
			file TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_progress_created_at ON progress(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Insert stores e, replacing any earlier entry for the same file.
// A zero CreatedAt is set to now.
func (s *Store) Insert(ctx context.Context, e Entry) (Entry, error) {
	if e.File == "" {
		return Entry{}, fmt.Errorf("%w: file is empty", ErrInvalidEntry)
	}
	if !e.Status.Valid() {
		return Entry{}, fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, e.Status)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress (file, status, created_at) VALUES (?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET status = excluded.status, created_at = excluded.created_at
	`, e.File, string(e.Status), e.CreatedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("insert progress: %w", err)
	}
	return e, nil
}

// NeedsProcessing reports whether file has no entry yet.
func (s *Store) NeedsProcessing(ctx context.Context, file string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM progress WHERE file = ?`, file).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query progress: %w", err)
	}
	return n == 0, nil
}

// Last returns the most recently inserted entry, or nil when the log is empty.
func (s *Store) Last(ctx context.Context) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file, status, created_at
		FROM progress
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`)

	var e Entry
	var status string
	var createdAt int64
	if err := row.Scan(&e.File, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	e.Status = Status(status)
	e.CreatedAt = time.UnixMilli(createdAt)
	return &e, nil
}
