package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when an archived record does not exist.
var ErrNotFound = errors.New("record not found")

// Archiver receives records that have left the live model. Implementations
// backed by a database live outside this module.
type Archiver[T any] interface {
	// Archive stores a completed record under id.
	Archive(ctx context.Context, id string, record T) error
}

// MemoryArchive keeps the most recent records in memory. The oldest record
// is discarded once the limit is reached.
type MemoryArchive[T any] struct {
	mu    sync.RWMutex
	limit int
	order []string
	items map[string]T
}

// NewMemoryArchive returns an archive holding at most limit records. A
// non-positive limit keeps everything.
func NewMemoryArchive[T any](limit int) *MemoryArchive[T] {
	return &MemoryArchive[T]{
		limit: limit,
		items: make(map[string]T),
	}
}

// Archive stores record, replacing an earlier record with the same id.
func (a *MemoryArchive[T]) Archive(_ context.Context, id string, record T) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.items[id]; !exists {
		a.order = append(a.order, id)
	}
	a.items[id] = record

	for a.limit > 0 && len(a.order) > a.limit {
		oldest := a.order[0]
		a.order = a.order[1:]
		delete(a.items, oldest)
	}
	return nil
}

// Get returns the record archived under id.
func (a *MemoryArchive[T]) Get(_ context.Context, id string) (T, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	record, ok := a.items[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return record, nil
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns all of them.
func (a *MemoryArchive[T]) Recent(limit int) []T {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := len(a.order)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]T, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.items[a.order[i]])
	}
	return out
}

// Len returns the number of archived records.
func (a *MemoryArchive[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}
