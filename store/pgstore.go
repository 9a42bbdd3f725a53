package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultPostgresConnMaxLifetime = 30 * time.Minute

var postgresDialect = sqlDialect{
	name: "postgres",
	schema: `
CREATE TABLE IF NOT EXISTS counters (
	name TEXT PRIMARY KEY,
	value BIGINT NOT NULL CHECK (value >= 0),
	called BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	insertSeed: `
INSERT INTO counters (name, value, called)
VALUES ($1, $2, FALSE)
ON CONFLICT (name) DO NOTHING`,
	selectLocked: `SELECT value, called FROM counters WHERE name = $1 FOR UPDATE`,
	selectPeek:   `SELECT value, called FROM counters WHERE name = $1`,
	update: `
UPDATE counters
SET value = $1, called = $2, updated_at = now()
WHERE name = $3`,
	drop: `DROP TABLE IF EXISTS counters`,
}

// PostgresStoreConfig configures the PostgreSQL counter store.
type PostgresStoreConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// ConnMaxLifetime recycles pooled connections (default 30m).
	ConnMaxLifetime time.Duration
}

// DSN renders the connection URL.
func (c PostgresStoreConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	return u.String()
}

// PostgresStore persists counters in a PostgreSQL table. Advances lock the
// counter row with SELECT ... FOR UPDATE, so concurrent transactions on the
// same counter serialize and a rolled-back batch releases its values.
type PostgresStore struct {
	sqlStore
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection pool. It does not contact the server;
// use Ping or WaitReady.
func NewPostgresStore(cfg PostgresStoreConfig) (*PostgresStore, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("store: postgres host is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, errors.New("store: postgres database name is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 5432
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaultPostgresConnMaxLifetime
	}

	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("store: postgres open: %w", err)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &PostgresStore{sqlStore{
		db:      db,
		dialect: postgresDialect,
		target:  cfg.Host + "/" + cfg.Database,
	}}, nil
}
