// Package dispatch implements the ingestion side of the manager event stream:
// an interest registry that decides which normalized kinds are worth
// queueing, a bounded single-worker queue, and a concurrent fan-out to
// listeners with bounded wait.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/sebas/amilive/internal/event"
)

// Listener consumes normalized events. RequiredKinds is read when the
// listener is registered. Listeners are identified by interface equality, so
// implementations should be pointers.
type Listener interface {
	Name() string
	RequiredKinds() []event.Kind
	OnEvent(ctx context.Context, evt event.Event) error
}

// ListenerFunc adapts a function into a Listener.
type ListenerFunc struct {
	ListenerName string
	Kinds        []event.Kind
	Fn           func(ctx context.Context, evt event.Event) error
}

func (f *ListenerFunc) Name() string { return f.ListenerName }
func (f *ListenerFunc) RequiredKinds() []event.Kind { return f.Kinds }
func (f *ListenerFunc) OnEvent(ctx context.Context, evt event.Event) error {
	return f.Fn(ctx, evt)
}

type kindSet map[event.Kind]struct{}

// implied lists the lower-level kinds a kind is synthesized from.
var implied = map[event.Kind][]event.Kind{
	event.KindBridge: {event.KindLink, event.KindUnlink},
}

// ExpandKinds returns kinds plus every kind they imply, without duplicates.
func ExpandKinds(kinds []event.Kind) []event.Kind {
	expanded := lo.FlatMap(kinds, func(k event.Kind, _ int) []event.Kind {
		return append([]event.Kind{k}, implied[k]...)
	})
	return lo.Uniq(expanded)
}

type registration struct {
	listener Listener
	kinds    kindSet
}

// registrySnapshot is immutable once published.
type registrySnapshot struct {
	regs  []registration
	union kindSet
}

// Registry tracks listener registrations and the union of the kinds they
// want. Reads are lock-free against a published snapshot; membership
// changes are serialized and publish a new snapshot.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[registrySnapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&registrySnapshot{union: kindSet{}})
	return r
}

// foldUnion computes the union of every registration's kinds.
func foldUnion(regs []registration) kindSet {
	return lo.Reduce(regs, func(acc kindSet, reg registration, _ int) kindSet {
		for k := range reg.kinds {
			acc[k] = struct{}{}
		}
		return acc
	}, kindSet{})
}

// Add registers a listener. Registering the same listener again replaces
// its kinds.
func (r *Registry) Add(l Listener) {
	kinds := kindSet{}
	for _, k := range ExpandKinds(l.RequiredKinds()) {
		kinds[k] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	regs := lo.Filter(cur.regs, func(reg registration, _ int) bool { return reg.listener != l })
	replaced := len(regs) != len(cur.regs)
	regs = append(regs, registration{listener: l, kinds: kinds})

	var union kindSet
	if replaced {
		union = foldUnion(regs)
	} else {
		union = make(kindSet, len(cur.union)+len(kinds))
		for k := range cur.union {
			union[k] = struct{}{}
		}
		for k := range kinds {
			union[k] = struct{}{}
		}
	}
	r.snap.Store(&registrySnapshot{regs: regs, union: union})
}

// Remove unregisters a listener and recomputes the union from the
// remaining registrations. It reports whether the listener was registered.
func (r *Registry) Remove(l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	regs := lo.Filter(cur.regs, func(reg registration, _ int) bool { return reg.listener != l })
	if len(regs) == len(cur.regs) {
		return false
	}
	r.snap.Store(&registrySnapshot{regs: regs, union: foldUnion(regs)})
	return true
}

// Interested reports whether any listener wants kind.
func (r *Registry) Interested(kind event.Kind) bool {
	_, ok := r.snap.Load().union[kind]
	return ok
}

// Union returns the kinds currently wanted by at least one listener.
func (r *Registry) Union() []event.Kind {
	return lo.Keys(r.snap.Load().union)
}

// Listeners returns the registered listeners in registration order.
func (r *Registry) Listeners() []Listener {
	return lo.Map(r.snap.Load().regs, func(reg registration, _ int) Listener { return reg.listener })
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	return len(r.snap.Load().regs)
}

// Matching returns the listeners whose expanded kinds contain kind.
func (r *Registry) Matching(kind event.Kind) []Listener {
	regs := r.snap.Load().regs
	out := make([]Listener, 0, len(regs))
	for _, reg := range regs {
		if _, ok := reg.kinds[kind]; ok {
			out = append(out, reg.listener)
		}
	}
	return out
}

// transferMu orders concurrent transfers so two registries moving listeners
// into each other cannot deadlock.
var transferMu sync.Mutex

// TransferTo moves every registration from r into dst, leaving r empty.
// Membership changes on either registry wait for the transfer to finish.
func (r *Registry) TransferTo(dst *Registry) {
	if r == dst {
		return
	}

	transferMu.Lock()
	defer transferMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	dst.mu.Lock()
	defer dst.mu.Unlock()

	src := r.snap.Load()
	cur := dst.snap.Load()

	regs := make([]registration, 0, len(cur.regs)+len(src.regs))
	for _, reg := range cur.regs {
		if !lo.ContainsBy(src.regs, func(s registration) bool { return s.listener == reg.listener }) {
			regs = append(regs, reg)
		}
	}
	regs = append(regs, src.regs...)

	dst.snap.Store(&registrySnapshot{regs: regs, union: foldUnion(regs)})
	r.snap.Store(&registrySnapshot{union: kindSet{}})
}
