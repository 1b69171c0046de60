package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"prism/internal/result"
)

// Store is the persistence contract for computed results.
type Store interface {
	// Load returns the cached result for a fingerprint pairing, with a hit
	// indicator. A miss is not an error.
	Load(ctx context.Context, assetDigest, executorID string) (*result.Result, bool, error)
	// Save persists a result. An existing entry for the same pairing is
	// replaced; concurrent savers race benignly and the last write wins.
	Save(ctx context.Context, res *result.Result) error
	// Delete removes the entry for a pairing. Deleting a missing entry is
	// not an error.
	Delete(ctx context.Context, assetDigest, executorID string) error
	Close() error
}

const resultColumns = `
    asset_digest, executor_id, asset_canonical, scores_json, created_at, updated_at
`

// SQLiteStore persists results in a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the result database and applies migrations.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure result db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS results (
            asset_digest    TEXT NOT NULL,
            executor_id     TEXT NOT NULL,
            asset_canonical TEXT NOT NULL,
            scores_json     TEXT NOT NULL,
            created_at      TEXT NOT NULL,
            updated_at      TEXT NOT NULL,
            PRIMARY KEY (asset_digest, executor_id)
        )`)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Load(ctx context.Context, assetDigest, executorID string) (*result.Result, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE asset_digest = ? AND executor_id = ?`,
		assetDigest, executorID,
	)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load result: %w", err)
	}
	return res, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, res *result.Result) error {
	scoresJSON, err := json.Marshal(res.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(asset_digest, executor_id) DO UPDATE SET
             asset_canonical = excluded.asset_canonical,
             scores_json     = excluded.scores_json,
             updated_at      = excluded.updated_at`,
		res.AssetDigest, res.ExecutorID, res.AssetCanonical, string(scoresJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, assetDigest, executorID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM results WHERE asset_digest = ? AND executor_id = ?`,
		assetDigest, executorID,
	)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}

// Entry summarizes a stored result for listings.
type Entry struct {
	AssetDigest string
	ExecutorID  string
	ScoreKeys   int
	UpdatedAt   time.Time
}

// List returns stored entries ordered by recency.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_digest, executor_id, scores_json, updated_at
         FROM results ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var scoresJSON, updatedAt string
		if err := rows.Scan(&entry.AssetDigest, &entry.ExecutorID, &scoresJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		var scores map[string][]float64
		if err := json.Unmarshal([]byte(scoresJSON), &scores); err == nil {
			entry.ScoreKeys = len(scores)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			entry.UpdatedAt = ts
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Purge removes every stored result and returns how many were deleted.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results`)
	if err != nil {
		return 0, fmt.Errorf("purge results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*result.Result, error) {
	var res result.Result
	var scoresJSON, createdAt, updatedAt string
	if err := row.Scan(
		&res.AssetDigest, &res.ExecutorID, &res.AssetCanonical,
		&scoresJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scoresJSON), &res.Scores); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}
	return &res, nil
}
