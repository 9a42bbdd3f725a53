package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultProbeSchedule is the store probe cadence when none is configured.
const DefaultProbeSchedule = "@every 30s"

var probeScheduleParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// parseProbeSchedule accepts a five-field cron expression or a descriptor
// such as "@every 30s". Timezone prefixes are rejected.
func parseProbeSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("probe schedule is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("probe schedule must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := probeScheduleParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid probe schedule: %w", err)
	}
	return schedule, nil
}

// Pinger is the part of a counter store the probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeStatus is the outcome of the latest store check.
type ProbeStatus struct {
	Up        bool
	CheckedAt time.Time
	Err       error
}

// StoreProbeConfig configures a StoreProbe.
type StoreProbeConfig struct {
	Store    Pinger
	Schedule string
	Timeout  time.Duration
	Metrics  *HTTPMetrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// StoreProbe pings the counter store on a cron schedule and remembers the
// result for /health and the pez_store_up gauge.
type StoreProbe struct {
	store    Pinger
	schedule cron.Schedule
	timeout  time.Duration
	metrics  *HTTPMetrics
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	status ProbeStatus
	cron   *cron.Cron
}

// NewStoreProbe creates a probe. It starts optimistic: Status reports up
// until the first check says otherwise.
func NewStoreProbe(cfg StoreProbeConfig) (*StoreProbe, error) {
	if cfg.Store == nil {
		return nil, errors.New("store probe: store is nil")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultProbeSchedule
	}
	schedule, err := parseProbeSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &StoreProbe{
		store:    cfg.Store,
		schedule: schedule,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      cfg.Now,
		status:   ProbeStatus{Up: true},
	}, nil
}

// Start runs one check immediately and then schedules the rest.
func (p *StoreProbe) Start(ctx context.Context) error {
	if p == nil {
		return errors.New("store probe is nil")
	}

	p.mu.Lock()
	if p.cron != nil {
		p.mu.Unlock()
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(p.schedule, cron.FuncJob(func() { p.Check(context.Background()) }))
	p.cron = c
	p.mu.Unlock()

	p.Check(ctx)
	c.Start()
	return nil
}

// Stop halts scheduling and waits for a running check to finish.
func (p *StoreProbe) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Check pings the store once and records the result.
func (p *StoreProbe) Check(ctx context.Context) ProbeStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.store.Ping(ctx)
	status := ProbeStatus{Up: err == nil, CheckedAt: p.now().UTC(), Err: err}

	p.mu.Lock()
	prev := p.status
	p.status = status
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.SetStoreUp(status.Up)
	}
	switch {
	case !status.Up && prev.Up:
		p.logger.Warn("counter store probe failed", "error", err)
	case status.Up && !prev.Up:
		p.logger.Info("counter store probe recovered")
	}
	return status
}

// Status returns the latest check result.
func (p *StoreProbe) Status() ProbeStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}
