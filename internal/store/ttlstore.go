// Package store holds the in-memory retention used for live channels and
// the archive boundary completed channels are handed to.
package store

import (
	"sync"
	"time"
)

// Entry wraps a value with its expiry. A zero ExpiresAt never expires.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

func (e *Entry[V]) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TTLStore is a generic map whose entries are retained until given an
// expiry, then evicted by a periodic sweep. Expired entries remain
// readable until the sweep removes them, so late lookups during the sweep
// interval still succeed.
type TTLStore[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]*Entry[V]
	onEvict func(key K, value V)
	now     func() time.Time

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewTTLStore returns a store. When interval is positive, a goroutine sweeps
// expired entries every interval until Close.
func NewTTLStore[K comparable, V any](interval time.Duration, onEvict func(key K, value V)) *TTLStore[K, V] {
	s := &TTLStore[K, V]{
		items:   make(map[K]*Entry[V]),
		onEvict: onEvict,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if interval > 0 {
		go s.sweepLoop(interval)
	}
	return s
}

// SetClock replaces the time source. Intended for tests.
func (s *TTLStore[K, V]) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Put stores value with no expiry, replacing any existing entry.
func (s *TTLStore[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = &Entry[V]{Value: value}
}

// Expire schedules key for eviction after ttl. It reports whether the key
// exists.
func (s *TTLStore[K, V]) Expire(key K, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return false
	}
	entry.ExpiresAt = s.now().Add(ttl)
	return true
}

// Get returns the value stored under key.
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// GetEntry returns a copy of the entry stored under key.
func (s *TTLStore[K, V]) GetEntry(key K) (Entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.items[key]
	if !ok {
		return Entry[V]{}, false
	}
	return *entry, true
}

// Move re-keys an entry, keeping its value and expiry. It fails if from is
// missing or to is taken.
func (s *TTLStore[K, V]) Move(from, to K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[from]
	if !ok {
		return false
	}
	if _, taken := s.items[to]; taken {
		return false
	}
	delete(s.items, from)
	s.items[to] = entry
	return true
}

// Delete removes key without calling the eviction callback.
func (s *TTLStore[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		delete(s.items, key)
		return true
	}
	return false
}

// Len returns the number of stored entries.
func (s *TTLStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Values returns every stored value.
func (s *TTLStore[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]V, 0, len(s.items))
	for _, entry := range s.items {
		out = append(out, entry.Value)
	}
	return out
}

// Close stops the sweep goroutine. Stored entries are kept.
func (s *TTLStore[K, V]) Close() {
	s.closeOnce.Do(func() { close(s.stopCh) })
}

func (s *TTLStore[K, V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep evicts expired entries and returns how many were removed. The
// eviction callback runs after the lock is released.
func (s *TTLStore[K, V]) Sweep() int {
	type evicted struct {
		key   K
		value V
	}

	s.mu.Lock()
	now := s.now()
	var expired []evicted
	for key, entry := range s.items {
		if entry.expired(now) {
			expired = append(expired, evicted{key, entry.Value})
			delete(s.items, key)
		}
	}
	onEvict := s.onEvict
	s.mu.Unlock()

	if onEvict != nil {
		for _, e := range expired {
			onEvict(e.key, e.value)
		}
	}
	return len(expired)
}
