package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sebas/amilive/internal/event"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultCapacity        = 1000
	DefaultPollInterval    = 2 * time.Second
	DefaultDispatchTimeout = 2 * time.Second
	DefaultSlowListener    = 500 * time.Millisecond
	DefaultSlowEvent       = 100 * time.Millisecond
)

// Options configures a Queue.
type Options struct {
	Capacity        int
	PollInterval    time.Duration
	DispatchTimeout time.Duration
	SlowListener    time.Duration
	SlowEvent       time.Duration
	Logger          *slog.Logger
	Recorder        Recorder
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = DefaultDispatchTimeout
	}
	if o.SlowListener <= 0 {
		o.SlowListener = DefaultSlowListener
	}
	if o.SlowEvent <= 0 {
		o.SlowEvent = DefaultSlowEvent
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

// item is a queue slot. A sentinel item tells the worker to exit.
type item struct {
	evt      event.Event
	sentinel bool
}

// Queue is a bounded event queue drained by one worker that fans each event
// out to the interested listeners. Submit never blocks: when the queue is
// full the newest event is dropped.
type Queue struct {
	opts      Options
	log       *slog.Logger
	listeners *Registry
	items     chan item

	// lifecycleMu orders Start against Stop; the flags stay atomic for the
	// lock-free reads in Enqueue and Running.
	lifecycleMu sync.Mutex
	started     atomic.Bool
	stopped     atomic.Bool
	stopOnce    sync.Once
	done        chan struct{}

	dropLimiter     *rate.Limiter
	occupyLimiter   *rate.Limiter
	droppedSinceLog atomic.Int64

	submitted      atomic.Int64
	filtered       atomic.Int64
	dropped        atomic.Int64
	dispatched     atomic.Int64
	timedOut       atomic.Int64
	listenerErrors atomic.Int64
}

// NewQueue creates a queue with an empty listener registry.
func NewQueue(opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		opts:          opts,
		log:           opts.Logger,
		listeners:     NewRegistry(),
		items:         make(chan item, opts.Capacity),
		done:          make(chan struct{}),
		dropLimiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		occupyLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// AddListener registers l and widens the interest union.
func (q *Queue) AddListener(l Listener) {
	q.listeners.Add(l)
	q.log.Debug("[Queue] Listener added", "listener", l.Name(), "kinds", ExpandKinds(l.RequiredKinds()))
}

// RemoveListener unregisters l and recomputes the interest union.
func (q *Queue) RemoveListener(l Listener) {
	if q.listeners.Remove(l) {
		q.log.Debug("[Queue] Listener removed", "listener", l.Name())
	}
}

// TransferListeners moves every listener registered on from onto q.
func (q *Queue) TransferListeners(from *Queue) {
	n := from.listeners.Len()
	from.listeners.TransferTo(q.listeners)
	q.log.Info("[Queue] Listeners transferred", "count", n)
}

// Listeners returns the registered listeners.
func (q *Queue) Listeners() []Listener {
	return q.listeners.Listeners()
}

// Interested reports whether any listener wants kind.
func (q *Queue) Interested(kind event.Kind) bool {
	return q.listeners.Interested(kind)
}

// Submit normalizes a raw event and enqueues it if some listener wants its
// kind. It reports whether the event was queued.
func (q *Queue) Submit(raw event.Raw) bool {
	kind, ok := event.KindOf(raw)
	if !ok || !q.listeners.Interested(kind) {
		q.filtered.Add(1)
		q.opts.Recorder.EventFiltered()
		return false
	}
	evt, ok := event.Normalize(raw)
	if !ok {
		q.filtered.Add(1)
		q.opts.Recorder.EventFiltered()
		return false
	}
	return q.Enqueue(evt)
}

// Enqueue adds an already normalized event. It never blocks.
func (q *Queue) Enqueue(evt event.Event) bool {
	if q.stopped.Load() {
		return false
	}

	select {
	case q.items <- item{evt: evt}:
	default:
		q.dropped.Add(1)
		q.opts.Recorder.EventDropped(evt.Kind())
		q.droppedSinceLog.Add(1)
		if q.dropLimiter.Allow() {
			q.log.Warn("[Queue] Queue full, dropping events",
				"capacity", q.opts.Capacity,
				"dropped", q.droppedSinceLog.Swap(0),
				"kind", evt.Kind())
		}
		return false
	}

	q.submitted.Add(1)
	q.opts.Recorder.EventSubmitted(evt.Kind())

	depth := len(q.items)
	q.opts.Recorder.QueueDepth(depth)
	if depth*10 > q.opts.Capacity*9 && q.occupyLimiter.Allow() {
		q.log.Warn("[Queue] Queue nearly full", "depth", depth, "capacity", q.opts.Capacity)
	}
	return true
}

// Start launches the worker. Cancelling ctx stops it like Stop does.
func (q *Queue) Start(ctx context.Context) {
	q.lifecycleMu.Lock()
	if q.stopped.Load() || q.started.Load() {
		q.lifecycleMu.Unlock()
		return
	}
	q.started.Store(true)
	q.lifecycleMu.Unlock()

	go q.run(ctx)
	q.log.Info("[Queue] Worker started",
		"capacity", q.opts.Capacity,
		"dispatch_timeout", q.opts.DispatchTimeout,
		"listeners", q.listeners.Len())
}

// Stop enqueues the shutdown sentinel and waits for the worker to finish the
// event it is dispatching. Events still queued behind the sentinel are not
// delivered.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.lifecycleMu.Lock()
		q.stopped.Store(true)
		started := q.started.Load()
		q.lifecycleMu.Unlock()

		if !started {
			close(q.done)
			return
		}
		select {
		case q.items <- item{sentinel: true}:
		case <-q.done:
		default:
			// Full; the worker sees the stopped flag on its next poll.
		}
	})
	<-q.done
}

// Done is closed once the worker has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Running reports whether the worker is draining the queue.
func (q *Queue) Running() bool {
	if !q.started.Load() {
		return false
	}
	select {
	case <-q.done:
		return false
	default:
		return true
	}
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Capacity:       q.opts.Capacity,
		Depth:          len(q.items),
		Listeners:      q.listeners.Len(),
		Submitted:      q.submitted.Load(),
		Filtered:       q.filtered.Load(),
		Dropped:        q.dropped.Load(),
		Dispatched:     q.dispatched.Load(),
		TimedOut:       q.timedOut.Load(),
		ListenerErrors: q.listenerErrors.Load(),
		Running:        q.Running(),
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)

	poll := time.NewTicker(q.opts.PollInterval)
	defer poll.Stop()

	for {
		select {
		case it := <-q.items:
			if it.sentinel {
				q.log.Info("[Queue] Worker stopped", "pending", len(q.items))
				return
			}
			q.opts.Recorder.QueueDepth(len(q.items))
			q.dispatch(ctx, it.evt)

		case <-poll.C:
			if q.stopped.Load() {
				q.log.Info("[Queue] Worker stopped", "pending", len(q.items))
				return
			}

		case <-ctx.Done():
			q.stopped.Store(true)
			q.log.Info("[Queue] Worker stopped by context", "pending", len(q.items))
			return
		}
	}
}
