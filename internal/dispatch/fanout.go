package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sebas/amilive/internal/event"
)

// dispatch delivers evt to every interested listener concurrently and waits
// for them, or for the dispatch timeout, whichever comes first. A listener
// still running at the timeout keeps running; the worker moves on.
func (q *Queue) dispatch(ctx context.Context, evt event.Event) {
	start := time.Now()
	kind := evt.Kind()

	age := start.Sub(evt.Received())
	if !evt.Received().IsZero() && age > q.opts.SlowEvent {
		q.log.Debug("[Queue] Event waited in queue", "kind", kind, "age", age)
	}

	targets := q.listeners.Matching(kind)
	if len(targets) > 0 {
		q.fanOut(ctx, evt, targets)
	}

	elapsed := time.Since(start)
	q.dispatched.Add(1)
	q.opts.Recorder.EventDispatched(kind, age, elapsed)
	if elapsed > q.opts.SlowEvent {
		q.log.Warn("[Queue] Slow event dispatch", "kind", kind, "listeners", len(targets), "elapsed", elapsed)
	}
}

func (q *Queue) fanOut(ctx context.Context, evt event.Event, targets []Listener) {
	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, l := range targets {
		go func() {
			defer wg.Done()
			q.deliver(ctx, l, evt)
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(q.opts.DispatchTimeout)
	defer timer.Stop()

	select {
	case <-finished:
	case <-timer.C:
		q.timedOut.Add(1)
		q.opts.Recorder.DispatchTimedOut(evt.Kind())
		q.log.Warn("[Queue] Listeners did not finish in time",
			"kind", evt.Kind(),
			"listeners", len(targets),
			"timeout", q.opts.DispatchTimeout)
	}
}

// deliver runs one listener callback, timing it and containing panics.
func (q *Queue) deliver(ctx context.Context, l Listener, evt event.Event) {
	start := time.Now()
	err := callListener(ctx, l, evt)
	elapsed := time.Since(start)

	if elapsed > q.opts.SlowListener {
		q.opts.Recorder.ListenerSlow(l.Name())
		q.log.Warn("[Queue] Slow listener", "listener", l.Name(), "kind", evt.Kind(), "elapsed", elapsed)
	}
	if err != nil {
		q.listenerErrors.Add(1)
		q.opts.Recorder.ListenerFailed(l.Name())
		q.log.Error("[Queue] Listener failed", "listener", l.Name(), "kind", evt.Kind(), "error", err)
	}
}

func callListener(ctx context.Context, l Listener, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return l.OnEvent(ctx, evt)
}
