package live

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateHistoryCollapsesConsecutiveDuplicates(t *testing.T) {
	states := []ChannelState{
		StateDown, StateReserved, StateOffHook, StateDialing, StateRing,
		StateRinging, StateUp, StateBusy, StateDialingOffHook, StatePreRing,
	}
	rng := rand.New(rand.NewPCG(1, 2))

	for run := 0; run < 200; run++ {
		env := newTestEnv(t)
		c := env.newTestChannel("1", "SIP/100-1")

		var want []StateEntry
		n := 1 + rng.IntN(20)
		for i := 0; i < n; i++ {
			s := states[rng.IntN(len(states))]
			when := ts(i + 1)
			c.applyStateChange(when, s)
			if len(want) == 0 || want[len(want)-1].State != s {
				want = append(want, StateEntry{At: when, State: s})
			}
		}

		require.Equal(t, want, c.StateHistory(), "run %d", run)
		assert.Equal(t, want[len(want)-1].State, c.State())
	}
}

func TestSameStateIsNoop(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	c.applyStateChange(ts(1), StateRinging)
	c.applyStateChange(ts(2), StateRinging)

	assert.Len(t, c.StateHistory(), 1)
	assert.Len(t, rec.of(PropState), 1)
}

func TestStateChangeNotifiesAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")

	var seen ChannelState
	var historyLen int
	c.AddObserver(ObserverFunc(func(ch Change) {
		seen = ch.Channel.State()
		historyLen = len(ch.Channel.StateHistory())
		assert.Equal(t, StateUnknown, ch.Old)
		assert.Equal(t, StateUp, ch.New)
	}))

	c.applyStateChange(ts(1), StateUp)

	assert.Equal(t, StateUp, seen)
	assert.Equal(t, 1, historyLen)
}

func TestHistoryTimestampsNeverRunBackwards(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")

	c.applyStateChange(ts(5), StateRinging)
	c.applyStateChange(ts(3), StateUp)

	h := c.StateHistory()
	require.Len(t, h, 2)
	assert.Equal(t, ts(5), h[1].At)
}

func TestHangupIsAppliedOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	c.applyStateChange(ts(1), StateUp)
	require.True(t, c.applyHangup(ts(2), CauseNormalClearing, "Normal Clearing"))
	assert.False(t, c.applyHangup(ts(3), CauseUserBusy, "User busy"))

	assert.Equal(t, StateHungup, c.State())
	assert.Equal(t, CauseNormalClearing, c.HangupCause())
	assert.Equal(t, "Normal Clearing", c.HangupCauseText())
	assert.Equal(t, ts(2), c.Removed())
	assert.Len(t, rec.of(PropState), 2)
	assert.Equal(t, []StateEntry{{ts(1), StateUp}, {ts(2), StateHungup}}, c.StateHistory())
}

func TestStateChangeAfterHangupOnlyExtendsHistory(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	c.applyHangup(ts(1), CauseNormalClearing, "")
	c.applyStateChange(ts(2), StateDown)
	c.applyStateChange(ts(3), StateDown)

	assert.Equal(t, StateHungup, c.State())
	assert.Equal(t, []StateEntry{{ts(1), StateHungup}, {ts(2), StateDown}}, c.StateHistory())
	assert.Len(t, rec.of(PropState), 1)
}

func TestWasBusy(t *testing.T) {
	env := newTestEnv(t)

	busy := env.newTestChannel("1", "SIP/1")
	busy.applyStateChange(ts(1), StateBusy)
	assert.True(t, busy.WasBusy())

	byCause := env.newTestChannel("2", "SIP/2")
	byCause.applyHangup(ts(1), CauseUserBusy, "User busy")
	assert.True(t, byCause.WasBusy())

	normal := env.newTestChannel("3", "SIP/3")
	normal.applyStateChange(ts(1), StateUp)
	normal.applyHangup(ts(2), CauseNormalClearing, "")
	assert.False(t, normal.WasBusy())
	assert.True(t, normal.WasInState(StateUp))
}

func TestRenameIsNoopForSameName(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	env.reg.rename(c, ts(1), "SIP/100-1")
	assert.Empty(t, rec.of(PropName))

	env.reg.rename(c, ts(2), "SIP/100-1<MASQ>")
	changes := rec.of(PropName)
	require.Len(t, changes, 1)
	assert.Equal(t, "SIP/100-1", changes[0].Old)
	assert.Equal(t, "SIP/100-1<MASQ>", changes[0].New)
}

func TestCallerIDAndAccountChanges(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	id := CallerID{Name: "Alice", Number: "100"}
	c.applyCallerID(ts(1), id)
	c.applyCallerID(ts(2), id)
	c.applyAccount(ts(3), "acct-1")
	c.applyAccount(ts(4), "acct-1")

	assert.Equal(t, id, c.CallerID())
	assert.Equal(t, "acct-1", c.Account())
	assert.Len(t, rec.of(PropCallerID), 1)
	assert.Len(t, rec.of(PropAccount), 1)
}

func TestDialedChannels(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")

	_, ok := c.DialedChannel()
	assert.False(t, ok)

	c.applyDialed(ts(1), "2")
	c.applyDialed(ts(2), "3")
	c.applyDialed(ts(3), "")

	got, ok := c.DialedChannel()
	require.True(t, ok)
	assert.Equal(t, "3", got)
	assert.Equal(t, []string{"2", "3", ""}, c.DialedChannels())
	assert.Len(t, c.DialedChannelHistory(), 3)
}

func TestDialingChannelKeepsReplacementHistory(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	c.applyDialing(ts(1), "a")
	c.applyDialing(ts(2), "a")
	c.applyDialing(ts(3), "b")

	got, ok := c.DialingChannel()
	require.True(t, ok)
	assert.Equal(t, "b", got)
	assert.Equal(t, []PeerEntry{{ts(1), "a"}, {ts(3), "b"}}, c.DialingChannelHistory())
	assert.Len(t, rec.of(PropDialingChannel), 2)
}

func TestLinkUnlink(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")

	assert.False(t, c.WasLinked())
	c.applyLink(ts(1), "2")
	c.applyUnlink(ts(2))
	c.applyUnlink(ts(3))
	c.applyLink(ts(4), "3")

	assert.True(t, c.WasLinked())
	got, ok := c.LinkedChannel()
	require.True(t, ok)
	assert.Equal(t, "3", got)
	assert.Equal(t, []LinkEntry{
		{LinkedAt: ts(1), UnlinkedAt: ts(2), ChannelID: "2"},
		{LinkedAt: ts(4), ChannelID: "3"},
	}, c.LinkedChannelHistory())

	c.applyUnlink(ts(5))
	_, ok = c.LinkedChannel()
	assert.False(t, ok)
	assert.True(t, c.WasLinked())
}

func TestRelinkClosesPreviousLink(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	c.applyLink(ts(1), "2")
	c.applyLink(ts(3), "3")

	assert.Equal(t, []LinkEntry{
		{LinkedAt: ts(1), UnlinkedAt: ts(3), ChannelID: "2"},
		{LinkedAt: ts(3), ChannelID: "3"},
	}, c.LinkedChannelHistory())

	changes := rec.of(PropLinkedChannel)
	require.Len(t, changes, 2)
	assert.Equal(t, "2", changes[1].Old)
	assert.Equal(t, "3", changes[1].New)
}

func TestExtensionHistory(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	_, ok := c.CurrentExtension()
	assert.False(t, ok)

	first := Extension{Context: "default", Exten: "200", Priority: 1, Application: "Answer"}
	second := Extension{Context: "default", Exten: "200", Priority: 2, Application: "Dial", AppData: "SIP/200"}
	c.applyExtension(ts(1), first)
	c.applyExtension(ts(2), second)

	cur, ok := c.CurrentExtension()
	require.True(t, ok)
	assert.Equal(t, second, cur)
	firstSeen, _ := c.FirstExtension()
	assert.Equal(t, first, firstSeen)
	assert.Len(t, c.ExtensionHistory(), 2)

	changes := rec.of(PropCurrentExtension)
	require.Len(t, changes, 2)
	assert.Nil(t, changes[0].Old)
	assert.Equal(t, first, changes[1].Old)
}

func TestParkedAndMonitored(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(rec)

	c.applyParked(ts(1), &Extension{Exten: "701"}, "default")
	require.NotNil(t, c.ParkedAt())
	assert.Equal(t, "701", c.ParkedAt().Exten)
	assert.Equal(t, "default", c.ParkingLot())

	c.applyParked(ts(2), nil, "")
	assert.Nil(t, c.ParkedAt())
	assert.Len(t, rec.of(PropParkedAt), 2)
	assert.Len(t, rec.of(PropParkingLot), 2)

	c.applyMonitored(ts(3), true)
	c.applyMonitored(ts(4), true)
	assert.True(t, c.Monitored())
	assert.Len(t, rec.of(PropMonitored), 1)
}

func TestDTMFDigits(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")

	c.applyDTMF(ts(1), "5", false)
	c.applyDTMF(ts(2), "#", true)

	assert.Equal(t, "5", c.DTMFReceived())
	assert.Equal(t, "#", c.DTMFSent())
}

func TestChannelObserverFuncCanBeRemoved(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	calls := 0
	remove := c.AddObserver(ObserverFunc(func(Change) { calls++ }))

	c.applyStateChange(ts(1), StateRinging)
	require.NotPanics(t, remove)
	c.applyStateChange(ts(2), StateUp)

	assert.Equal(t, 1, calls)
}

func TestObserverPanicIsContained(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	rec := &recorder{}
	c.AddObserver(ObserverFunc(func(Change) { panic("observer bug") }))
	c.AddObserver(rec)

	c.applyStateChange(ts(1), StateUp)

	assert.Len(t, rec.of(PropState), 1)
}

func TestFrozenChannelIgnoresMutations(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")
	c.freeze()

	c.applyStateChange(ts(1), StateUp)
	c.applyLink(ts(2), "2")
	c.updateVariable(ts(3), "A", "1")

	assert.Equal(t, StateUnknown, c.State())
	assert.False(t, c.WasLinked())
	assert.Empty(t, c.Variables())
}

func TestConcurrentReadersDuringMutation(t *testing.T) {
	env := newTestEnv(t)
	c := env.newTestChannel("1", "SIP/100-1")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = c.StateHistory()
				_ = c.LinkedChannelHistory()
				_ = c.DialedChannelHistory()
				_ = c.Snapshot()
			}
		}()
	}

	start := time.Now()
	for i := 0; i < 500; i++ {
		when := start.Add(time.Duration(i) * time.Millisecond)
		if i%2 == 0 {
			c.applyStateChange(when, StateRinging)
			c.applyLink(when, "peer")
		} else {
			c.applyStateChange(when, StateUp)
			c.applyUnlink(when)
		}
		c.applyDialed(when, "peer")
	}
	close(stop)
	wg.Wait()

	assert.Len(t, c.StateHistory(), 500)
	assert.Len(t, c.LinkedChannelHistory(), 250)
}
