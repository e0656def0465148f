package live

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// CallerID identifies the calling party.
type CallerID struct {
	Name   string `json:"name,omitempty"`
	Number string `json:"number,omitempty"`
}

// IsZero reports whether neither name nor number is set.
func (c CallerID) IsZero() bool { return c.Name == "" && c.Number == "" }

// Extension is a dialplan location.
type Extension struct {
	Context     string `json:"context,omitempty"`
	Exten       string `json:"exten"`
	Priority    int    `json:"priority,omitempty"`
	Application string `json:"application,omitempty"`
	AppData     string `json:"app_data,omitempty"`
}

// Variable is one channel variable, as carried in PropVariable changes.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StateEntry is one state history entry.
type StateEntry struct {
	At    time.Time    `json:"at"`
	State ChannelState `json:"state"`
}

// ExtensionEntry records a visited dialplan step.
type ExtensionEntry struct {
	At        time.Time `json:"at"`
	Extension Extension `json:"extension"`
}

// PeerEntry records a dialed or dialing peer by unique id.
type PeerEntry struct {
	At        time.Time `json:"at"`
	ChannelID string    `json:"channel_id"`
}

// LinkEntry records one bridge with another channel. UnlinkedAt is zero
// while the bridge is up.
type LinkEntry struct {
	LinkedAt   time.Time `json:"linked_at"`
	UnlinkedAt time.Time `json:"unlinked_at,omitzero"`
	ChannelID  string    `json:"channel_id"`
}

// peerLookup resolves a unique id to a channel. Channels reference each
// other only through it.
type peerLookup interface {
	Get(id string) (*Channel, bool)
}

// Channel is the live model of one call leg. It is mutated only by the
// ingestion worker through the apply methods and may be read from any
// goroutine.
//
// Lock order: mu, then any one collection lock.
type Channel struct {
	created time.Time
	cmd     Commander
	peers   peerLookup
	log     *slog.Logger

	mu           sync.RWMutex
	id           string
	name         string
	state        ChannelState
	callerID     CallerID
	account      string
	traceID      string
	hangupCause  HangupCause
	hangupText   string
	removed      time.Time
	dtmfReceived string
	dtmfSent     string
	parkedAt     *Extension
	parkingLot   string
	monitored    bool
	conference   string
	wasLinked    bool
	frozen       bool

	historyMu sync.RWMutex
	history   []StateEntry

	extMu      sync.RWMutex
	extensions []ExtensionEntry

	dialedMu      sync.RWMutex
	dialed        []string
	dialedHistory []PeerEntry

	dialingMu      sync.RWMutex
	dialing        string
	dialingHistory []PeerEntry

	linkedMu      sync.RWMutex
	linked        string
	linkedHistory []LinkEntry

	varsMu sync.RWMutex
	vars   map[string]string

	observers observerSet
	detach    func()
}

func newChannel(id, name string, created time.Time, cmd Commander, peers peerLookup, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		created: created,
		cmd:     cmd,
		peers:   peers,
		log:     log,
		id:      id,
		name:    name,
		vars:    make(map[string]string),
	}
}

// AddObserver registers o for this channel's changes and returns a func
// that unregisters it.
func (c *Channel) AddObserver(o Observer) (remove func()) {
	return c.observers.add(o)
}

// notify delivers committed changes. It must be called with no channel lock
// held.
func (c *Channel) notify(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	observers := c.observers.snapshot()

	for _, ch := range changes {
		ch.Channel = c
		for _, o := range observers {
			c.deliver(o, ch)
		}
	}
}

func (c *Channel) deliver(o Observer, ch Change) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("[Live] Observer panicked", "channel", ch.Channel.ID(), "property", ch.Property, "panic", r)
		}
	}()
	o.ChannelChanged(ch)
}

// clamp keeps history timestamps from running backwards.
func clamp(at, last time.Time) time.Time {
	if at.Before(last) {
		return last
	}
	return at
}

// Accessors

// ID returns the current unique id.
func (c *Channel) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Name returns the current channel name.
func (c *Channel) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Created returns when the channel was first observed.
func (c *Channel) Created() time.Time {
	return c.created
}

// State returns the current state.
func (c *Channel) State() ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// StateHistory returns a copy of the state history.
func (c *Channel) StateHistory() []StateEntry {
	c.historyMu.RLock()
	defer c.historyMu.RUnlock()
	return slices.Clone(c.history)
}

// WasInState reports whether the channel was ever in s.
func (c *Channel) WasInState(s ChannelState) bool {
	c.historyMu.RLock()
	defer c.historyMu.RUnlock()
	return slices.ContainsFunc(c.history, func(e StateEntry) bool { return e.State == s })
}

// WasBusy reports whether the far end was busy at some point.
func (c *Channel) WasBusy() bool {
	if c.WasInState(StateBusy) {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateHungup && c.hangupCause == CauseUserBusy
}

// CallerID returns the caller identity.
func (c *Channel) CallerID() CallerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callerID
}

// Account returns the billing account code.
func (c *Channel) Account() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// TraceID returns the correlation id set by the originator, if any.
func (c *Channel) TraceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.traceID
}

// Hangup outcome; zero values until the channel hangs up.

func (c *Channel) HangupCause() HangupCause {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hangupCause
}

func (c *Channel) HangupCauseText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hangupText
}

func (c *Channel) Removed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.removed
}

// DTMFReceived returns the last digit received, "" if none.
func (c *Channel) DTMFReceived() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dtmfReceived
}

// DTMFSent returns the last digit sent, "" if none.
func (c *Channel) DTMFSent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dtmfSent
}

// ParkedAt returns the parking extension, nil when not parked.
func (c *Channel) ParkedAt() *Extension {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.parkedAt == nil {
		return nil
	}
	ext := *c.parkedAt
	return &ext
}

// ParkingLot returns the lot the channel is parked in.
func (c *Channel) ParkingLot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parkingLot
}

// Monitored reports whether the channel is being recorded.
func (c *Channel) Monitored() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitored
}

// Conference returns the conference room the channel is in.
func (c *Channel) Conference() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conference
}

// WasLinked reports whether the channel was ever bridged.
func (c *Channel) WasLinked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wasLinked
}

// Frozen reports whether the channel has been retired from the registry.
func (c *Channel) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// CurrentExtension returns the last visited dialplan step.
func (c *Channel) CurrentExtension() (Extension, bool) {
	c.extMu.RLock()
	defer c.extMu.RUnlock()
	if len(c.extensions) == 0 {
		return Extension{}, false
	}
	return c.extensions[len(c.extensions)-1].Extension, true
}

// FirstExtension returns the first visited dialplan step.
func (c *Channel) FirstExtension() (Extension, bool) {
	c.extMu.RLock()
	defer c.extMu.RUnlock()
	if len(c.extensions) == 0 {
		return Extension{}, false
	}
	return c.extensions[0].Extension, true
}

// ExtensionHistory returns a copy of the visited dialplan steps.
func (c *Channel) ExtensionHistory() []ExtensionEntry {
	c.extMu.RLock()
	defer c.extMu.RUnlock()
	return slices.Clone(c.extensions)
}

// DialedChannel returns the unique id of the most recently dialed channel.
func (c *Channel) DialedChannel() (string, bool) {
	c.dialedMu.RLock()
	defer c.dialedMu.RUnlock()
	for i := len(c.dialed) - 1; i >= 0; i-- {
		if c.dialed[i] != "" {
			return c.dialed[i], true
		}
	}
	return "", false
}

// DialedChannels returns the unique ids of every dialed channel, in order.
func (c *Channel) DialedChannels() []string {
	c.dialedMu.RLock()
	defer c.dialedMu.RUnlock()
	return slices.Clone(c.dialed)
}

// DialedChannelHistory returns a copy of the dial history.
func (c *Channel) DialedChannelHistory() []PeerEntry {
	c.dialedMu.RLock()
	defer c.dialedMu.RUnlock()
	return slices.Clone(c.dialedHistory)
}

// DialingChannel returns the unique id of the channel dialing this one.
func (c *Channel) DialingChannel() (string, bool) {
	c.dialingMu.RLock()
	defer c.dialingMu.RUnlock()
	return c.dialing, c.dialing != ""
}

// DialingChannelHistory returns every channel that dialed this one.
func (c *Channel) DialingChannelHistory() []PeerEntry {
	c.dialingMu.RLock()
	defer c.dialingMu.RUnlock()
	return slices.Clone(c.dialingHistory)
}

// LinkedChannel returns the unique id of the bridged peer.
func (c *Channel) LinkedChannel() (string, bool) {
	c.linkedMu.RLock()
	defer c.linkedMu.RUnlock()
	return c.linked, c.linked != ""
}

// LinkedChannelHistory returns a copy of the bridge history.
func (c *Channel) LinkedChannelHistory() []LinkEntry {
	c.linkedMu.RLock()
	defer c.linkedMu.RUnlock()
	return slices.Clone(c.linkedHistory)
}

// Variables returns a copy of the cached variables.
func (c *Channel) Variables() map[string]string {
	c.varsMu.RLock()
	defer c.varsMu.RUnlock()
	return maps.Clone(c.vars)
}

// Mutations applied by the tracker. Each returns after observers have been
// notified of the committed change.

func (c *Channel) applyStateChange(at time.Time, s ChannelState) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}
	change, ok := c.stateChangeLocked(at, s)
	c.mu.Unlock()

	if ok {
		c.notify(change)
	}
}

// stateChangeLocked requires c.mu held for writing.
func (c *Channel) stateChangeLocked(at time.Time, s ChannelState) (Change, bool) {
	if c.state == s {
		return Change{}, false
	}

	c.historyMu.Lock()
	defer c.historyMu.Unlock()

	var last StateEntry
	if n := len(c.history); n > 0 {
		last = c.history[n-1]
	}
	at = clamp(at, last.At)

	if c.state.IsTerminal() {
		if last.State != s {
			c.history = append(c.history, StateEntry{At: at, State: s})
		}
		return Change{}, false
	}

	old := c.state
	c.history = append(c.history, StateEntry{At: at, State: s})
	c.state = s
	return Change{Property: PropState, Old: old, New: s, At: at}, true
}

// applyHangup records the hangup outcome and moves to StateHungup. A second
// hangup is ignored. An open bridge is closed at the hangup time.
func (c *Channel) applyHangup(at time.Time, cause HangupCause, text string) bool {
	c.mu.Lock()
	if c.frozen || c.state.IsTerminal() {
		c.mu.Unlock()
		return false
	}

	c.removed = at
	c.hangupCause = cause
	c.hangupText = text
	var changes []Change
	if ch, ok := c.unlinkLocked(at); ok {
		changes = append(changes, ch)
	}
	if ch, ok := c.stateChangeLocked(at, StateHungup); ok {
		changes = append(changes, ch)
	}
	c.mu.Unlock()

	c.notify(changes...)
	return true
}

// rename and changeID are called by the registry while it holds its index
// lock; the registry notifies once the index is consistent.
func (c *Channel) rename(at time.Time, name string) (Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen || c.name == name {
		return Change{}, false
	}
	old := c.name
	c.name = name
	return Change{Property: PropName, Old: old, New: name, At: at}, true
}

func (c *Channel) changeID(at time.Time, id string) (Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen || c.id == id {
		return Change{}, false
	}
	old := c.id
	c.id = id
	return Change{Property: PropID, Old: old, New: id, At: at}, true
}

func (c *Channel) applyCallerID(at time.Time, id CallerID) {
	c.mu.Lock()
	if c.frozen || c.callerID == id {
		c.mu.Unlock()
		return
	}
	old := c.callerID
	c.callerID = id
	c.mu.Unlock()

	c.notify(Change{Property: PropCallerID, Old: old, New: id, At: at})
}

func (c *Channel) applyAccount(at time.Time, account string) {
	c.mu.Lock()
	if c.frozen || c.account == account {
		c.mu.Unlock()
		return
	}
	old := c.account
	c.account = account
	c.mu.Unlock()

	c.notify(Change{Property: PropAccount, Old: old, New: account, At: at})
}

// SetTraceID attaches a correlation id, typically right after originating.
func (c *Channel) SetTraceID(traceID string) {
	c.mu.Lock()
	if c.frozen || c.traceID == traceID {
		c.mu.Unlock()
		return
	}
	old := c.traceID
	c.traceID = traceID
	c.mu.Unlock()

	c.notify(Change{Property: PropTraceID, Old: old, New: traceID, At: time.Now()})
}

func (c *Channel) applyExtension(at time.Time, ext Extension) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}
	c.extMu.Lock()
	var old *Extension
	var last time.Time
	if n := len(c.extensions); n > 0 {
		prev := c.extensions[n-1]
		old, last = &prev.Extension, prev.At
	}
	at = clamp(at, last)
	c.extensions = append(c.extensions, ExtensionEntry{At: at, Extension: ext})
	c.extMu.Unlock()
	c.mu.Unlock()

	var oldVal any
	if old != nil {
		oldVal = *old
	}
	c.notify(Change{Property: PropCurrentExtension, Old: oldVal, New: ext, At: at})
}

func (c *Channel) applyDialed(at time.Time, peerID string) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}
	c.dialedMu.Lock()
	var old string
	var last time.Time
	if n := len(c.dialed); n > 0 {
		old = c.dialed[n-1]
	}
	if n := len(c.dialedHistory); n > 0 {
		last = c.dialedHistory[n-1].At
	}
	at = clamp(at, last)
	c.dialed = append(c.dialed, peerID)
	c.dialedHistory = append(c.dialedHistory, PeerEntry{At: at, ChannelID: peerID})
	c.dialedMu.Unlock()
	c.mu.Unlock()

	c.notify(Change{Property: PropDialedChannel, Old: old, New: peerID, At: at})
}

func (c *Channel) applyDialing(at time.Time, peerID string) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}
	c.dialingMu.Lock()
	if c.dialing == peerID {
		c.dialingMu.Unlock()
		c.mu.Unlock()
		return
	}
	old := c.dialing
	var last time.Time
	if n := len(c.dialingHistory); n > 0 {
		last = c.dialingHistory[n-1].At
	}
	at = clamp(at, last)
	c.dialing = peerID
	c.dialingHistory = append(c.dialingHistory, PeerEntry{At: at, ChannelID: peerID})
	c.dialingMu.Unlock()
	c.mu.Unlock()

	c.notify(Change{Property: PropDialingChannel, Old: old, New: peerID, At: at})
}

func (c *Channel) applyLink(at time.Time, peerID string) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}
	c.linkedMu.Lock()
	if c.linked == peerID {
		c.linkedMu.Unlock()
		c.mu.Unlock()
		return
	}
	old := c.linked
	var last time.Time
	if n := len(c.linkedHistory); n > 0 {
		last = c.linkedHistory[n-1].LinkedAt
	}
	at = clamp(at, last)
	if n := len(c.linkedHistory); n > 0 && c.linkedHistory[n-1].UnlinkedAt.IsZero() {
		// Relinked without an unlink in between; the previous link ends now.
		c.linkedHistory[n-1].UnlinkedAt = at
	}
	c.linked = peerID
	c.linkedHistory = append(c.linkedHistory, LinkEntry{LinkedAt: at, ChannelID: peerID})
	c.linkedMu.Unlock()
	c.wasLinked = true
	c.mu.Unlock()

	c.notify(Change{Property: PropLinkedChannel, Old: old, New: peerID, At: at})
}

func (c *Channel) applyUnlink(at time.Time) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}
	change, ok := c.unlinkLocked(at)
	c.mu.Unlock()

	if ok {
		c.notify(change)
	}
}

// unlinkLocked requires c.mu held for writing.
func (c *Channel) unlinkLocked(at time.Time) (Change, bool) {
	c.linkedMu.Lock()
	defer c.linkedMu.Unlock()

	if c.linked == "" {
		return Change{}, false
	}
	old := c.linked
	c.linked = ""
	if n := len(c.linkedHistory); n > 0 && c.linkedHistory[n-1].UnlinkedAt.IsZero() {
		entry := &c.linkedHistory[n-1]
		entry.UnlinkedAt = clamp(at, entry.LinkedAt)
	}
	return Change{Property: PropLinkedChannel, Old: old, New: "", At: at}, true
}

func (c *Channel) applyDTMF(at time.Time, digit string, sent bool) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}
	prop := PropDTMFReceived
	field := &c.dtmfReceived
	if sent {
		prop, field = PropDTMFSent, &c.dtmfSent
	}
	old := *field
	*field = digit
	c.mu.Unlock()

	c.notify(Change{Property: prop, Old: old, New: digit, At: at})
}

func (c *Channel) applyParked(at time.Time, ext *Extension, lot string) {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return
	}
	oldAt, oldLot := c.parkedAt, c.parkingLot
	c.parkedAt, c.parkingLot = ext, lot
	c.mu.Unlock()

	var changes []Change
	if !samePark(oldAt, ext) {
		changes = append(changes, Change{Property: PropParkedAt, Old: derefExt(oldAt), New: derefExt(ext), At: at})
	}
	if oldLot != lot {
		changes = append(changes, Change{Property: PropParkingLot, Old: oldLot, New: lot, At: at})
	}
	c.notify(changes...)
}

func samePark(a, b *Extension) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func derefExt(e *Extension) any {
	if e == nil {
		return nil
	}
	return *e
}

func (c *Channel) applyMonitored(at time.Time, monitored bool) {
	c.mu.Lock()
	if c.frozen || c.monitored == monitored {
		c.mu.Unlock()
		return
	}
	c.monitored = monitored
	c.mu.Unlock()

	c.notify(Change{Property: PropMonitored, Old: !monitored, New: monitored, At: at})
}

func (c *Channel) applyConference(at time.Time, room string) {
	c.mu.Lock()
	if c.frozen || c.conference == room {
		c.mu.Unlock()
		return
	}
	old := c.conference
	c.conference = room
	c.mu.Unlock()

	c.notify(Change{Property: PropConference, Old: old, New: room, At: at})
}

// updateVariable refreshes the cache from an observed assignment.
func (c *Channel) updateVariable(at time.Time, name, value string) {
	c.mu.RLock()
	frozen := c.frozen
	c.mu.RUnlock()
	if frozen {
		return
	}
	if change, ok := c.cacheVariable(at, name, value); ok {
		c.notify(change)
	}
}

func (c *Channel) cacheVariable(at time.Time, name, value string) (Change, bool) {
	c.varsMu.Lock()
	defer c.varsMu.Unlock()
	old, had := c.vars[name]
	c.vars[name] = value
	if had && old == value {
		return Change{}, false
	}
	return Change{
		Property: PropVariable,
		Old:      Variable{Name: name, Value: old},
		New:      Variable{Name: name, Value: value},
		At:       at,
	}, true
}

func (c *Channel) freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}
