package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// sqlDialect holds the statements that differ between SQL backends.
type sqlDialect struct {
	name         string
	schema       string
	insertSeed   string
	selectLocked string
	selectPeek   string
	update       string
	drop         string
}

// sqlStore implements Store on top of database/sql. Backends differ only in
// their dialect and in how the *sql.DB is opened.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
	target  string
}

func (s *sqlStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(s.dialect.name+" begin", err)
	}
	return &sqlTx{tx: tx, dialect: s.dialect}, nil
}

func (s *sqlStore) Provision(ctx context.Context, seeds []Seed) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return unavailable(s.dialect.name+" create schema", err)
	}
	for _, seed := range seeds {
		start, err := toSQLValue(seed.Start)
		if err != nil {
			return fmt.Errorf("store: seed %q: %w", seed.Name, err)
		}
		if _, err := s.db.ExecContext(ctx, s.dialect.insertSeed, seed.Name, start); err != nil {
			return unavailable(fmt.Sprintf("%s seed %q", s.dialect.name, seed.Name), err)
		}
	}
	return nil
}

func (s *sqlStore) Drop(ctx context.Context) error {
	if err := CheckTeardown(s.target); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.drop); err != nil {
		return unavailable(s.dialect.name+" drop schema", err)
	}
	return nil
}

func (s *sqlStore) Peek(ctx context.Context, name string) (Counter, error) {
	var (
		value  int64
		called bool
	)
	err := s.db.QueryRowContext(ctx, s.dialect.selectPeek, name).Scan(&value, &called)
	if errors.Is(err, sql.ErrNoRows) {
		return Counter{}, unknownCounter(name)
	}
	if err != nil {
		return Counter{}, unavailable(s.dialect.name+" peek "+name, err)
	}
	return Counter{Value: uint64(value), Called: called}, nil // #nosec G115 -- values are stored non-negative
}

func (s *sqlStore) Set(ctx context.Context, name string, c Counter) error {
	value, err := toSQLValue(c.Value)
	if err != nil {
		return fmt.Errorf("store: set %q: %w", name, err)
	}
	res, err := s.db.ExecContext(ctx, s.dialect.update, value, c.Called, name)
	if err != nil {
		return unavailable(s.dialect.name+" set "+name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(s.dialect.name+" set "+name, err)
	}
	if n == 0 {
		return unknownCounter(name)
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return unavailable(s.dialect.name+" ping", s.db.PingContext(ctx))
}

func (s *sqlStore) Target() string {
	return s.target
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx      *sql.Tx
	dialect sqlDialect
}

func (t *sqlTx) Advance(ctx context.Context, name string, step Step) (uint64, error) {
	var (
		value  int64
		called bool
	)
	err := t.tx.QueryRowContext(ctx, t.dialect.selectLocked, name).Scan(&value, &called)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, unknownCounter(name)
	}
	if err != nil {
		return 0, unavailable(t.dialect.name+" load "+name, err)
	}

	next, err := step(Counter{Value: uint64(value), Called: called}) // #nosec G115 -- values are stored non-negative
	if err != nil {
		return 0, err
	}
	stored, err := toSQLValue(next.Value)
	if err != nil {
		return 0, fmt.Errorf("store: advance %q: %w", name, err)
	}

	if _, err := t.tx.ExecContext(ctx, t.dialect.update, stored, next.Called, name); err != nil {
		return 0, unavailable(t.dialect.name+" store "+name, err)
	}
	return next.Value, nil
}

func (t *sqlTx) Commit() error {
	return unavailable(t.dialect.name+" commit", t.tx.Commit())
}

func (t *sqlTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return unavailable(t.dialect.name+" rollback", err)
}

func toSQLValue(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds the signed 64-bit column range", v)
	}
	return int64(v), nil
}
