package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultSQLiteDir         = ".pez"
	defaultSQLiteDB          = "pez.db"
	defaultSQLiteBusyTimeout = 5 * time.Second
)

var sqliteDialect = sqlDialect{
	name: "sqlite",
	schema: `
CREATE TABLE IF NOT EXISTS counters (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL,
	called INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);`,
	insertSeed: `
INSERT INTO counters (name, value, called, updated_at)
VALUES (?, ?, 0, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
ON CONFLICT(name) DO NOTHING`,
	selectLocked: `SELECT value, called FROM counters WHERE name = ?`,
	selectPeek:   `SELECT value, called FROM counters WHERE name = ?`,
	update: `
UPDATE counters
SET value = ?, called = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
WHERE name = ?`,
	drop: `DROP TABLE IF EXISTS counters`,
}

// SQLiteStoreConfig configures the SQLite counter store.
type SQLiteStoreConfig struct {
	// Path is the database file. "file:" URIs are passed through unchanged.
	Path string

	// BusyTimeout bounds how long a writer waits for the database lock
	// (default 5s).
	BusyTimeout time.Duration
}

// SQLiteStore persists counters in a SQLite database.
//
// Transactions are opened with BEGIN IMMEDIATE so the write lock is held from
// the first read of a counter until commit.
type SQLiteStore struct {
	sqlStore
}

var _ Store = (*SQLiteStore)(nil)

// DefaultSQLitePath returns ~/.pez/pez.db.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultSQLiteDir, defaultSQLiteDB), nil
}

// NewSQLiteStore opens (or creates) a SQLite counter store. The schema is not
// created; call Provision.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaultSQLiteBusyTimeout
	}

	target := path
	if !strings.HasPrefix(strings.ToLower(path), "file:") {
		target = filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return nil, fmt.Errorf("store: sqlite create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(target, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("store: sqlite open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, unavailable("sqlite set WAL mode", err)
	}

	return &SQLiteStore{sqlStore{
		db:      db,
		dialect: sqliteDialect,
		target:  target,
	}}, nil
}

func sqliteDSN(path string, busyTimeout time.Duration) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_txlock=immediate&_pragma=busy_timeout(%d)", path, sep, busyTimeout.Milliseconds())
}
