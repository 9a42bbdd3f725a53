// Package store provides durable, atomically advancing named counters.
//
// A Store hands out transactions; inside a transaction Advance loads a counter
// under a write lock, applies a caller-supplied step and persists the result.
// Nothing is visible to other callers until Commit.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for store operations.
var (
	// ErrUnavailable matches every failure reaching or operating the backing
	// database. Callers translate it into a "service unavailable" response.
	ErrUnavailable = errors.New("counter store unavailable")

	// ErrUnknownCounter is returned when a counter record does not exist,
	// usually because the schema has not been provisioned.
	ErrUnknownCounter = errors.New("counter not found")

	// ErrProductionStore is returned by Drop when the target looks like a
	// production database.
	ErrProductionStore = errors.New("refusing to drop a production counter store")
)

// Counter is the durable state of one named counter.
//
// Value is the last issued value when Called is true, or the value the next
// advance will issue when Called is false.
type Counter struct {
	Value  uint64 `json:"value"`
	Called bool   `json:"called"`
}

// Step computes the next counter state. It returns the state to persist; the
// issued value is the Value of the returned state.
type Step func(current Counter) (Counter, error)

// Seed declares a counter and its initial value for provisioning.
type Seed struct {
	Name  string
	Start uint64
}

// Tx is a unit of work against the store. Rollback after Commit is a no-op.
type Tx interface {
	Advance(ctx context.Context, name string, step Step) (uint64, error)
	Commit() error
	Rollback() error
}

// Store is the counter store contract consumed by the sequence engine and the
// dispenser.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// Provision creates the backing schema and any missing counter records.
	// Existing records keep their values.
	Provision(ctx context.Context, seeds []Seed) error

	// Drop destroys the backing schema. It refuses production targets.
	Drop(ctx context.Context) error

	Peek(ctx context.Context, name string) (Counter, error)
	Set(ctx context.Context, name string, c Counter) error
	Ping(ctx context.Context) error

	// Target names the backing database (host/database or file path).
	Target() string
	Close() error
}

// Error wraps a driver-level failure. It matches ErrUnavailable.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

func unknownCounter(name string) error {
	return &Error{Op: "advance " + name, Err: ErrUnknownCounter}
}

// CheckTeardown returns ErrProductionStore when target contains "prod".
func CheckTeardown(target string) error {
	if strings.Contains(strings.ToLower(target), "prod") {
		return fmt.Errorf("%w: %q", ErrProductionStore, target)
	}
	return nil
}
