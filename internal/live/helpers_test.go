package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sebas/amilive/internal/ami"
	"github.com/sebas/amilive/internal/store"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func ts(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

// fakeCommander records actions and answers them with respond.
type fakeCommander struct {
	mu      sync.Mutex
	sent    []*ami.Action
	respond func(a *ami.Action) *ami.Response
}

func (f *fakeCommander) SendAction(_ context.Context, a *ami.Action) (*ami.Response, error) {
	f.mu.Lock()
	f.sent = append(f.sent, a)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return success(), nil
	}
	return respond(a), nil
}

func (f *fakeCommander) actions() []*ami.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*ami.Action(nil), f.sent...)
}

func response(status string, fields ...string) *ami.Response {
	m := ami.NewMessage(time.Now())
	m.Set("Response", status)
	for i := 0; i+1 < len(fields); i += 2 {
		m.Set(fields[i], fields[i+1])
	}
	return ami.NewResponse(m)
}

func success(fields ...string) *ami.Response {
	return response("Success", fields...)
}

func failure(message string) *ami.Response {
	return response("Error", "Message", message)
}

// recorder collects observed changes.
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) ChannelChanged(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) of(p Property) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Change
	for _, c := range r.changes {
		if c.Property == p {
			out = append(out, c)
		}
	}
	return out
}

type testEnv struct {
	cmd     *fakeCommander
	archive *store.MemoryArchive[Snapshot]
	reg     *Registry
	tracker *Tracker
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		cmd:     &fakeCommander{},
		archive: store.NewMemoryArchive[Snapshot](0),
		clock:   &fakeClock{now: t0},
	}
	env.reg = NewRegistry(RegistryOptions{
		HangupGrace:   15 * time.Second,
		SweepInterval: time.Hour,
		Commander:     env.cmd,
		Archiver:      env.archive,
	})
	env.reg.SetClock(env.clock.Now)
	env.tracker = NewTracker(env.reg, nil)
	t.Cleanup(env.reg.Close)
	return env
}

// newTestChannel creates a channel registered in env.
func (env *testEnv) newTestChannel(id, name string) *Channel {
	c, _ := env.reg.create(t0, id, name)
	return c
}
