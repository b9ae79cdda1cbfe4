// Package memory is a process-local counter store with per-key expiry.
package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     int
	createdAt time.Time
	expiresAt time.Time
}

// Store keeps counters in a map guarded by a mutex. Expired keys read as 0
// and are removed by a periodic sweep started with Run.
type Store struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{data: make(map[string]entry), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return 0, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return 0, nil
	}
	return e.value, nil
}

func (s *Store) Set(_ context.Context, key string, value int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	created := now
	if e, ok := s.data[key]; ok && now.Before(e.expiresAt) {
		created = e.createdAt
	}
	s.data[key] = entry{value: value, createdAt: created, expiresAt: now.Add(ttl)}
	return nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of keys currently held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Sweep drops every expired key and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.data {
		if !now.Before(e.expiresAt) {
			delete(s.data, k)
			n++
		}
	}
	return n
}

// Run sweeps on every tick until ctx is done.
func (s *Store) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
