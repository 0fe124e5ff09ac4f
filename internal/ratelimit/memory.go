package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count   int64
	expires time.Time
}

// MemoryStore is the in-process CounterStore. Adequate for a single
// instance; a periodic sweep bounds memory. Horizontal scale-out needs
// the redis store instead.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	stop     chan struct{}
	once     sync.Once
	now      func() time.Time
}

// NewMemoryStore creates the store and starts the expiry sweep.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*counter),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweep(sweepInterval)
	return s
}

// Incr implements CounterStore. A counter never outlives its window:
// an expired counter is replaced by a fresh one for the new window.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || now.After(c.expires) {
		c = &counter{expires: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.expires.Sub(now), nil
}

// Close stops the background sweep.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

// sweep periodically drops expired counters. Runs on its own timer,
// decoupled from the request path; the lock is held only for the scan.
func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for key, c := range s.counters {
				if now.After(c.expires) {
					delete(s.counters, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
