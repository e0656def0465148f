// Package live maintains an in-memory model of in-progress calls. Channels
// are created and mutated by the Tracker as normalized events are
// dispatched, and read concurrently through the Registry.
package live

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sebas/amilive/internal/store"
)

// Defaults used when RegistryOptions leaves a field zero.
const (
	DefaultHangupGrace   = 15 * time.Second
	DefaultSweepInterval = time.Second
	archiveTimeout       = 5 * time.Second
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// HangupGrace is how long a hung-up channel stays addressable so late
	// events can still attach to it.
	HangupGrace   time.Duration
	SweepInterval time.Duration
	Commander     Commander
	Archiver      store.Archiver[Snapshot]
	Logger        *slog.Logger
}

// Registry indexes live channels by unique id and by name. Channels that
// hang up are retained for the grace period, then frozen and archived.
type Registry struct {
	opts     RegistryOptions
	log      *slog.Logger
	channels *store.TTLStore[string, *Channel]

	mu      sync.RWMutex
	byName  map[string]string
	aliases map[string]string

	observers observerSet
}

// NewRegistry returns an empty registry and starts its retention sweep.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.HangupGrace <= 0 {
		opts.HangupGrace = DefaultHangupGrace
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{
		opts:    opts,
		log:     opts.Logger,
		byName:  make(map[string]string),
		aliases: make(map[string]string),
	}
	r.channels = store.NewTTLStore[string, *Channel](opts.SweepInterval, r.evict)
	return r
}

// Close stops the retention sweep.
func (r *Registry) Close() {
	r.channels.Close()
}

// AddObserver registers o for changes on every channel and returns a func
// that unregisters it.
func (r *Registry) AddObserver(o Observer) (remove func()) {
	return r.observers.add(o)
}

// ChannelChanged forwards a channel change to registry-wide observers.
func (r *Registry) ChannelChanged(c Change) {
	for _, o := range r.observers.snapshot() {
		o.ChannelChanged(c)
	}
}

// create adds a channel unless one already exists under id.
func (r *Registry) create(at time.Time, id, name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.channels.Get(id); ok {
		return c, false
	}
	c := newChannel(id, name, at, r.opts.Commander, r, r.log)
	c.detach = c.AddObserver(r)
	r.channels.Put(id, c)
	if name != "" {
		r.byName[name] = id
	}
	delete(r.aliases, id)

	r.log.Debug("[Live] Channel created", "id", id, "name", name)
	return c, true
}

// Get returns the channel with the given unique id, following renames.
func (r *Registry) Get(id string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(id)
}

func (r *Registry) getLocked(id string) (*Channel, bool) {
	for range len(r.aliases) + 1 {
		if c, ok := r.channels.Get(id); ok {
			return c, true
		}
		next, ok := r.aliases[id]
		if !ok {
			return nil, false
		}
		id = next
	}
	return nil, false
}

// FindByName returns the channel currently named name.
func (r *Registry) FindByName(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.channels.Get(id)
}

// Channels returns every retained channel, hung-up ones included, oldest
// first.
func (r *Registry) Channels() []*Channel {
	all := r.channels.Values()
	slices.SortFunc(all, func(a, b *Channel) int { return a.Created().Compare(b.Created()) })
	return all
}

// Active returns channels that have not hung up, oldest first.
func (r *Registry) Active() []*Channel {
	return slices.DeleteFunc(r.Channels(), func(c *Channel) bool { return c.State().IsTerminal() })
}

// Counts returns the number of active and retained hung-up channels.
func (r *Registry) Counts() (active, hungup int) {
	for _, c := range r.channels.Values() {
		if c.State().IsTerminal() {
			hungup++
		} else {
			active++
		}
	}
	return active, hungup
}

// rename swaps the name index and renames c in one step. Observers are
// notified after both are committed.
func (r *Registry) rename(c *Channel, at time.Time, name string) {
	r.mu.Lock()
	old := c.Name()
	change, ok := c.rename(at, name)
	if ok {
		if r.byName[old] == c.ID() {
			delete(r.byName, old)
		}
		r.byName[name] = c.ID()
	}
	r.mu.Unlock()

	if ok {
		r.log.Debug("[Live] Channel renamed", "id", c.ID(), "old", old, "new", name)
		c.notify(change)
	}
}

// rekey moves c to a new unique id. Lookups by the old id keep resolving
// through an alias until the channel is evicted.
func (r *Registry) rekey(c *Channel, at time.Time, id string) {
	r.mu.Lock()
	old := c.ID()
	if old == id || !r.channels.Move(old, id) {
		r.mu.Unlock()
		return
	}
	change, _ := c.changeID(at, id)
	for alias, target := range r.aliases {
		if target == old {
			r.aliases[alias] = id
		}
	}
	r.aliases[old] = id
	if name := c.Name(); r.byName[name] == old {
		r.byName[name] = id
	}
	r.mu.Unlock()

	r.log.Debug("[Live] Channel re-keyed", "old_id", old, "new_id", id)
	c.notify(change)
}

// hungup starts the grace period for c.
func (r *Registry) hungup(c *Channel) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.channels.Expire(c.ID(), r.opts.HangupGrace)
}

// Sweep evicts channels whose grace period has elapsed.
func (r *Registry) Sweep() int {
	return r.channels.Sweep()
}

// SetClock replaces the retention time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.channels.SetClock(now)
}

func (r *Registry) evict(id string, c *Channel) {
	c.freeze()
	c.detach()

	r.mu.Lock()
	if name := c.Name(); r.byName[name] == id {
		delete(r.byName, name)
	}
	for alias, target := range r.aliases {
		if target == id {
			delete(r.aliases, alias)
		}
	}
	r.mu.Unlock()

	r.log.Debug("[Live] Channel retired", "id", id, "name", c.Name())

	if r.opts.Archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.opts.Archiver.Archive(ctx, id, c.Snapshot()); err != nil {
		r.log.Error("[Live] Failed to archive channel", "id", id, "error", err)
	}
}
