package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebas/amilive/internal/ami"
	"github.com/sebas/amilive/internal/event"
)

// captureHandler records log messages for assertions.
type captureHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler { return h }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *captureHandler) count(substr string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.messages {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

func newTestQueue(t *testing.T, opts Options) (*Queue, *captureHandler) {
	t.Helper()
	h := &captureHandler{}
	opts.Logger = slog.New(h)
	q := NewQueue(opts)
	t.Cleanup(q.Stop)
	return q, h
}

func hangupAt(id string, ts time.Time) event.Hangup {
	return event.Hangup{Base: event.Base{ReceivedAt: ts}, UniqueID: id, Channel: "SIP/" + id, Cause: 16}
}

func TestSubmitFiltersUninterestingKinds(t *testing.T) {
	q, _ := newTestQueue(t, Options{Capacity: 4})
	q.AddListener(listenerFor("hangups", event.KindHangup))

	state := ami.NewMessage(time.Now())
	state.Set("Event", "Newstate")
	state.Set("Uniqueid", "1")
	assert.False(t, q.Submit(state))

	unknown := ami.NewMessage(time.Now())
	unknown.Set("Event", "PeerStatus")
	assert.False(t, q.Submit(unknown))

	hangup := ami.NewMessage(time.Now())
	hangup.Set("Event", "Hangup")
	hangup.Set("Uniqueid", "1")
	assert.True(t, q.Submit(hangup))

	stats := q.Stats()
	assert.EqualValues(t, 2, stats.Filtered)
	assert.EqualValues(t, 1, stats.Submitted)
	assert.Equal(t, 1, stats.Depth)
}

func TestSubmitBridgeListenerAcceptsLinkAndUnlink(t *testing.T) {
	q, _ := newTestQueue(t, Options{Capacity: 4})
	q.AddListener(listenerFor("bridges", event.KindBridge))

	for _, name := range []string{"Link", "Unlink"} {
		m := ami.NewMessage(time.Now())
		m.Set("Event", name)
		assert.True(t, q.Submit(m), name)
	}
}

func TestEnqueueOverflowDropsNewestAndRateLimitsLog(t *testing.T) {
	const capacity, extra = 10, 250

	q, logs := newTestQueue(t, Options{Capacity: capacity})
	q.AddListener(listenerFor("hangups", event.KindHangup))

	accepted := 0
	for i := 0; i < capacity+extra; i++ {
		if q.Enqueue(hangupAt("x", time.Now())) {
			accepted++
		}
	}

	stats := q.Stats()
	assert.Equal(t, capacity, accepted)
	assert.Equal(t, capacity, stats.Depth)
	assert.EqualValues(t, extra, stats.Dropped)
	assert.Equal(t, 1, logs.count("Queue full"))
	assert.Equal(t, 1, logs.count("nearly full"))
}

func TestWorkerDeliversInOrder(t *testing.T) {
	q, _ := newTestQueue(t, Options{Capacity: 16})

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	q.AddListener(&ListenerFunc{
		ListenerName: "order",
		Kinds:        []event.Kind{event.KindHangup},
		Fn: func(_ context.Context, evt event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, evt.(event.Hangup).UniqueID)
			if len(got) == 3 {
				close(done)
			}
			return nil
		},
	})

	for _, id := range []string{"1", "2", "3"} {
		require.True(t, q.Enqueue(hangupAt(id, time.Now())))
	}
	q.Start(context.Background())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestSentinelStopsWorker(t *testing.T) {
	q, _ := newTestQueue(t, Options{Capacity: 4, PollInterval: time.Hour})
	q.Start(context.Background())
	require.True(t, q.Running())

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not observe sentinel")
	}
	assert.False(t, q.Running())
	assert.False(t, q.Enqueue(hangupAt("late", time.Now())))
}

func TestStopWithFullQueueUsesPoll(t *testing.T) {
	q, _ := newTestQueue(t, Options{
		Capacity:        1,
		PollInterval:    20 * time.Millisecond,
		DispatchTimeout: 50 * time.Millisecond,
	})

	block := make(chan struct{})
	q.AddListener(&ListenerFunc{
		ListenerName: "blocker",
		Kinds:        []event.Kind{event.KindHangup},
		Fn: func(context.Context, event.Event) error {
			<-block
			return nil
		},
	})
	defer close(block)

	require.True(t, q.Enqueue(hangupAt("1", time.Now())))
	q.Start(context.Background())
	require.Eventually(t, func() bool { return q.Stats().Depth == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, q.Enqueue(hangupAt("2", time.Now())))

	start := time.Now()
	q.Stop()
	assert.Less(t, time.Since(start), time.Second)
}

func TestContextCancelStopsWorker(t *testing.T) {
	q, _ := newTestQueue(t, Options{Capacity: 4, PollInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	select {
	case <-q.Done():
	case <-time.After(time.Second):
		t.Fatal("worker ignored context cancellation")
	}
}

func TestStopBeforeStart(t *testing.T) {
	q := NewQueue(Options{})
	q.Stop()
	q.Start(context.Background())
	assert.False(t, q.Running())
}

func TestConcurrentStartStop(t *testing.T) {
	for range 200 {
		q := NewQueue(Options{Logger: slog.New(&captureHandler{})})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			q.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			q.Stop()
		}()
		wg.Wait()
		q.Stop()

		select {
		case <-q.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
		assert.False(t, q.Running())
	}
}

func TestTransferListeners(t *testing.T) {
	src, _ := newTestQueue(t, Options{})
	dst, _ := newTestQueue(t, Options{})
	l := listenerFor("l", event.KindBridge)
	src.AddListener(l)

	dst.TransferListeners(src)

	assert.Empty(t, src.Listeners())
	assert.False(t, src.Interested(event.KindLink))
	assert.Equal(t, []Listener{l}, dst.Listeners())
	assert.True(t, dst.Interested(event.KindLink))
}

func TestFanOutRemovedListenerStopsReceiving(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	var calls atomic.Int32
	l := &ListenerFunc{
		ListenerName: "counter",
		Kinds:        []event.Kind{event.KindHangup},
		Fn: func(context.Context, event.Event) error {
			calls.Add(1)
			return nil
		},
	}
	q.AddListener(l)
	q.dispatch(context.Background(), hangupAt("1", time.Now()))
	q.RemoveListener(l)
	q.dispatch(context.Background(), hangupAt("2", time.Now()))

	assert.EqualValues(t, 1, calls.Load())
}

func TestFanOutIsolatesFailingListeners(t *testing.T) {
	q, logs := newTestQueue(t, Options{})

	var healthy atomic.Int32
	q.AddListener(&ListenerFunc{
		ListenerName: "panics",
		Kinds:        []event.Kind{event.KindHangup},
		Fn:           func(context.Context, event.Event) error { panic("boom") },
	})
	q.AddListener(&ListenerFunc{
		ListenerName: "errors",
		Kinds:        []event.Kind{event.KindHangup},
		Fn:           func(context.Context, event.Event) error { return errors.New("nope") },
	})
	q.AddListener(&ListenerFunc{
		ListenerName: "healthy",
		Kinds:        []event.Kind{event.KindHangup},
		Fn: func(context.Context, event.Event) error {
			healthy.Add(1)
			return nil
		},
	})

	q.dispatch(context.Background(), hangupAt("1", time.Now()))

	assert.EqualValues(t, 1, healthy.Load())
	assert.EqualValues(t, 2, q.Stats().ListenerErrors)
	assert.Equal(t, 2, logs.count("Listener failed"))
}

func TestFanOutTimeoutDoesNotWaitForSlowListener(t *testing.T) {
	q, logs := newTestQueue(t, Options{
		DispatchTimeout: 50 * time.Millisecond,
		SlowListener:    20 * time.Millisecond,
	})

	release := make(chan struct{})
	slowDone := make(chan struct{})
	var fast atomic.Int32
	q.AddListener(&ListenerFunc{
		ListenerName: "slow",
		Kinds:        []event.Kind{event.KindHangup},
		Fn: func(context.Context, event.Event) error {
			<-release
			close(slowDone)
			return nil
		},
	})
	q.AddListener(&ListenerFunc{
		ListenerName: "fast",
		Kinds:        []event.Kind{event.KindHangup},
		Fn: func(context.Context, event.Event) error {
			fast.Add(1)
			return nil
		},
	})

	start := time.Now()
	q.dispatch(context.Background(), hangupAt("1", time.Now()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.EqualValues(t, 1, fast.Load())
	assert.EqualValues(t, 1, q.Stats().TimedOut)
	assert.Equal(t, 1, logs.count("did not finish in time"))

	// The slow callback was not cancelled and still completes.
	close(release)
	select {
	case <-slowDone:
	case <-time.After(time.Second):
		t.Fatal("slow listener never completed")
	}
	require.Eventually(t, func() bool { return logs.count("Slow listener") == 1 }, time.Second, 5*time.Millisecond)
}

func TestFanOutSlowListenerStillDelivers(t *testing.T) {
	q, logs := newTestQueue(t, Options{SlowListener: 10 * time.Millisecond})

	var got atomic.Int32
	q.AddListener(&ListenerFunc{
		ListenerName: "sluggish",
		Kinds:        []event.Kind{event.KindHangup},
		Fn: func(context.Context, event.Event) error {
			time.Sleep(30 * time.Millisecond)
			got.Add(1)
			return nil
		},
	})

	q.dispatch(context.Background(), hangupAt("1", time.Now()))

	assert.EqualValues(t, 1, got.Load())
	assert.EqualValues(t, 0, q.Stats().TimedOut)
	assert.Equal(t, 1, logs.count("Slow listener"))
}

func TestFanOutSkipsUninterestedListeners(t *testing.T) {
	q, _ := newTestQueue(t, Options{DispatchTimeout: 50 * time.Millisecond})

	q.AddListener(&ListenerFunc{
		ListenerName: "dtmf",
		Kinds:        []event.Kind{event.KindDTMF},
		Fn: func(context.Context, event.Event) error {
			time.Sleep(time.Second)
			return nil
		},
	})

	start := time.Now()
	q.dispatch(context.Background(), hangupAt("1", time.Now()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.EqualValues(t, 0, q.Stats().TimedOut)
}
