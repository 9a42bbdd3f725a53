package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultReadyTimeout = 30 * time.Second

// WaitReady pings s until it answers or timeout elapses, backing off
// exponentially between attempts. A non-positive timeout uses 30s.
func WaitReady(ctx context.Context, s Store, timeout time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = timeout

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.Ping(ctx)
		if err != nil {
			logger.Warn("counter store not ready", "target", s.Target(), "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
