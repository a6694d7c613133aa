// Package store provides the on-device SQLite database for myday.
//
// It holds two things:
//   - the single authenticated session of this device (kv table)
//   - the last task history pulled from the backend (task_history table),
//     which backs the archive view and local stats when offline
//
// The database runs in embedded mode with WAL so the CLI and a running
// watch daemon can read it concurrently.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/magicmac/myday/internal/schema"
)

// ErrNoSession is returned when no session is stored on this device.
var ErrNoSession = errors.New("no session stored")

const sessionKey = "auth.session"

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at path and initializes the schema.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// busy_timeout is a per-connection setting, so it goes in the DSN
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_history (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT '',
		day TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_task_history_day ON task_history(day);
	`
	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveSession stores s as the device session, replacing any previous one.
func (db *DB) SaveSession(ctx context.Context, s *schema.Session) error {
	if !s.Valid() {
		return fmt.Errorf("refusing to store incomplete session")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, sessionKey, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session or ErrNoSession.
func (db *DB) LoadSession(ctx context.Context) (*schema.Session, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, sessionKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s schema.Session
	if err := json.Unmarshal([]byte(value), &s); err != nil || !s.Valid() {
		// An unreadable record is as good as signed out
		return nil, ErrNoSession
	}
	return &s, nil
}

// ClearSession removes the stored session. Idempotent.
func (db *DB) ClearSession(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, sessionKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// ReplaceTasks replaces the stored task history with tasks in one
// transaction.
func (db *DB) ReplaceTasks(ctx context.Context, tasks []schema.Task) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_history`); err != nil {
		return fmt.Errorf("failed to clear task history: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO task_history (id, text, completed, created_at, day)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		text = excluded.text,
		completed = excluded.completed,
		created_at = excluded.created_at,
		day = excluded.day
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, t.ID, t.Text, boolToInt(t.Completed), t.CreatedAt, t.Day); err != nil {
			return fmt.Errorf("failed to store task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task history: %w", err)
	}
	return nil
}

// ListTasks returns the stored history, newest first.
func (db *DB) ListTasks(ctx context.Context) ([]schema.Task, error) {
	return db.queryTasks(ctx, `
	SELECT id, text, completed, created_at, day FROM task_history
	ORDER BY created_at DESC
	`)
}

// ListTasksSince returns stored tasks on or after cutoffDay, oldest day first.
func (db *DB) ListTasksSince(ctx context.Context, cutoffDay string) ([]schema.Task, error) {
	return db.queryTasks(ctx, `
	SELECT id, text, completed, created_at, day FROM task_history
	WHERE day >= ?
	ORDER BY day ASC, created_at ASC
	`, cutoffDay)
}

// GetTaskCount returns the number of stored tasks.
func (db *DB) GetTaskCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]schema.Task, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []schema.Task
	for rows.Next() {
		var (
			t         schema.Task
			completed int
		)
		if err := rows.Scan(&t.ID, &t.Text, &completed, &t.CreatedAt, &t.Day); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Completed = completed != 0
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
