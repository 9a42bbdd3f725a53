// Package dispenser turns client requests into sequence advances inside a
// single store transaction.
package dispenser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petal-labs/pez/sequence"
	"github.com/petal-labs/pez/store"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Store    store.Store
	Observer Observer
	Logger   *slog.Logger
}

// Service dispenses values from sequences. It keeps no counter state between
// calls.
type Service struct {
	store    store.Store
	observer Observer
	logger   *slog.Logger
}

// NewService creates a dispenser over the given store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("dispenser: store is nil")
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:    cfg.Store,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}, nil
}

// DispenseOne performs exactly one advance in its own transaction.
func (s *Service) DispenseOne(ctx context.Context, seq *sequence.Engine) (uint64, error) {
	var value uint64
	err := s.observe(ctx, seq, 1, func(ctx context.Context) error {
		return s.withinTx(ctx, func(tx store.Tx) error {
			v, err := seq.Advance(ctx, tx)
			if err != nil {
				return err
			}
			value = v
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// DispenseBatch performs count sequential advances in one transaction and
// returns the values in call order. Either every advance commits or none
// does. count must already be bounded by the caller.
func (s *Service) DispenseBatch(ctx context.Context, seq *sequence.Engine, count int) ([]uint64, error) {
	if count < 1 {
		return nil, fmt.Errorf("dispenser: batch count %d must be positive", count)
	}

	values := make([]uint64, 0, count)
	err := s.observe(ctx, seq, count, func(ctx context.Context) error {
		return s.withinTx(ctx, func(tx store.Tx) error {
			for i := 0; i < count; i++ {
				v, err := seq.Advance(ctx, tx)
				if err != nil {
					return err
				}
				values = append(values, v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// withinTx runs fn in a store transaction. The transaction commits when fn
// returns nil and rolls back on error or panic; it is finished on every path.
func (s *Service) withinTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx)
			panic(p)
		}
		if err != nil {
			s.rollback(tx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Service) rollback(tx store.Tx) {
	if err := tx.Rollback(); err != nil {
		s.logger.Warn("dispenser rollback failed", "error", err)
	}
}

func (s *Service) observe(ctx context.Context, seq *sequence.Engine, count int, fn func(ctx context.Context) error) error {
	ctx, finish := s.observer.StartDispense(ctx, seq.Name(), count)
	started := time.Now()
	err := fn(ctx)
	finish(Observation{
		Sequence: seq.Name(),
		Count:    count,
		Duration: time.Since(started),
		Err:      err,
	})
	return err
}
