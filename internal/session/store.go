package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/harvestd/harvestd/internal/model"
)

// dbFileName is the SQLite file holding all session snapshots.
const dbFileName = "harvestd.db"

// timeFormat is how timestamp columns are stored. RFC3339 in UTC sorts
// lexicographically, so age comparisons can happen in SQL.
const timeFormat = time.RFC3339

// Store provides SQLite-backed storage for session snapshots.
//
// Design decision: The full session (items included) is stored as one JSON
// column and the row carries only the fields needed for filtering (status,
// timestamps). This keeps save/load a single statement and guarantees the
// snapshot round-trips exactly, at the cost of not being able to query
// individual items in SQL, which nothing needs.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a session store at the specified directory.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("session database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; session saves are serialized anyway
	// by the session lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- One row per session; the snapshot column is the source of truth.
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		session_type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		snapshot TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(last_updated);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Save atomically persists the whole session snapshot, inserting or
// replacing the row for its session ID. The session's LastUpdated field is
// advanced as part of the save.
func (s *Store) Save(ctx context.Context, sess *model.BatchSession) error {
	sess.LastUpdated = time.Now().UTC()

	snapshot, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to serialize session %s: %w", sess.SessionID, err)
	}

	query := `
	INSERT INTO sessions (session_id, session_type, status, created_at, last_updated, snapshot)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		session_type = excluded.session_type,
		status = excluded.status,
		last_updated = excluded.last_updated,
		snapshot = excluded.snapshot
	`

	_, err = s.db.ExecContext(ctx, query,
		sess.SessionID,
		sess.Type,
		string(sess.Status),
		sess.CreatedAt.UTC().Format(timeFormat),
		sess.LastUpdated.Format(timeFormat),
		string(snapshot),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.SessionID, err)
	}

	return nil
}

// Load reconstructs a session from its last saved snapshot.
// It returns (nil, nil) when no session with the given ID exists.
func (s *Store) Load(ctx context.Context, sessionID string) (*model.BatchSession, error) {
	query := `SELECT snapshot FROM sessions WHERE session_id = ?`

	var snapshot string
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var sess model.BatchSession
	if err := json.Unmarshal([]byte(snapshot), &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", sessionID, err)
	}

	return &sess, nil
}

// List returns all persisted sessions, newest first. When activeOnly is
// true, only pending and running sessions are returned.
func (s *Store) List(ctx context.Context, activeOnly bool) ([]*model.BatchSession, error) {
	query := `SELECT snapshot FROM sessions`
	args := make([]any, 0, 2)

	if activeOnly {
		query += ` WHERE status IN (?, ?)`
		args = append(args, string(model.SessionPending), string(model.SessionRunning))
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.BatchSession
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		var sess model.BatchSession
		if err := json.Unmarshal([]byte(snapshot), &sess); err != nil {
			continue // Skip malformed snapshots
		}
		sessions = append(sessions, &sess)
	}

	return sessions, rows.Err()
}

// Delete removes a session's persisted snapshot. It reports whether a row
// existed for the given ID.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete result: %w", err)
	}
	return n > 0, nil
}

// DeleteFinished removes all completed, failed, and cancelled sessions and
// returns how many were deleted.
func (s *Store) DeleteFinished(ctx context.Context) (int, error) {
	query := `DELETE FROM sessions WHERE status IN (?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		string(model.SessionCompleted),
		string(model.SessionFailed),
		string(model.SessionCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}
	return int(n), nil
}

// DeleteOlderThan removes sessions whose last update is older than the given
// age and returns how many were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age).Format(timeFormat)

	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_updated < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}
	return int(n), nil
}
