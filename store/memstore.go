package store

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-process Store. A transaction holds the store lock from
// Begin until Commit or Rollback and stages its writes, so it has the same
// isolation as the SQL backends. Intended for tests and local development.
type MemoryStore struct {
	lock chan struct{}

	mu       sync.Mutex
	counters map[string]Counter
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty, unprovisioned memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lock: make(chan struct{}, 1),
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, unavailable("memory begin", ctx.Err())
	}
	if err := s.checkOpen(); err != nil {
		<-s.lock
		return nil, err
	}
	return &memTx{store: s, staged: map[string]Counter{}}, nil
}

func (s *MemoryStore) Provision(_ context.Context, seeds []Seed) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters == nil {
		s.counters = map[string]Counter{}
	}
	for _, seed := range seeds {
		if _, ok := s.counters[seed.Name]; !ok {
			s.counters[seed.Name] = Counter{Value: seed.Start}
		}
	}
	return nil
}

func (s *MemoryStore) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = nil
	return nil
}

func (s *MemoryStore) Peek(_ context.Context, name string) (Counter, error) {
	if err := s.checkOpen(); err != nil {
		return Counter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[name]
	if !ok {
		return Counter{}, unknownCounter(name)
	}
	return c, nil
}

// Set waits for any open transaction to finish, as a row update does on the
// SQL backends.
func (s *MemoryStore) Set(ctx context.Context, name string, c Counter) error {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return unavailable("memory set "+name, ctx.Err())
	}
	defer func() { <-s.lock }()

	if err := s.checkOpen(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[name]; !ok {
		return unknownCounter(name)
	}
	s.counters[name] = c
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return s.checkOpen()
}

func (s *MemoryStore) Target() string {
	return "memory"
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("memory", errors.New("store is closed"))
	}
	return nil
}

type memTx struct {
	store  *MemoryStore
	staged map[string]Counter
	done   bool
}

func (t *memTx) Advance(ctx context.Context, name string, step Step) (uint64, error) {
	if t.done {
		return 0, unavailable("memory advance "+name, errors.New("transaction already finished"))
	}
	if err := ctx.Err(); err != nil {
		return 0, unavailable("memory advance "+name, err)
	}

	current, ok := t.staged[name]
	if !ok {
		t.store.mu.Lock()
		current, ok = t.store.counters[name]
		t.store.mu.Unlock()
		if !ok {
			return 0, unknownCounter(name)
		}
	}

	next, err := step(current)
	if err != nil {
		return 0, err
	}
	t.staged[name] = next
	return next.Value, nil
}

func (t *memTx) Commit() error {
	if t.done {
		return unavailable("memory commit", errors.New("transaction already finished"))
	}
	t.done = true
	defer func() { <-t.store.lock }()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.closed {
		return unavailable("memory commit", errors.New("store is closed"))
	}
	for name, c := range t.staged {
		if _, ok := t.store.counters[name]; ok {
			t.store.counters[name] = c
		}
	}
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.staged = nil
	<-t.store.lock
	return nil
}
