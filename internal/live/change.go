package live

import (
	"slices"
	"sync"
	"time"
)

// Property names a mutable channel field.
type Property string

const (
	PropState            Property = "state"
	PropName             Property = "name"
	PropID               Property = "id"
	PropCallerID         Property = "caller_id"
	PropAccount          Property = "account"
	PropCurrentExtension Property = "current_extension"
	PropDialedChannel    Property = "dialed_channel"
	PropDialingChannel   Property = "dialing_channel"
	PropLinkedChannel    Property = "linked_channel"
	PropDTMFReceived     Property = "dtmf_received"
	PropDTMFSent         Property = "dtmf_sent"
	PropParkedAt         Property = "parked_at"
	PropParkingLot       Property = "parking_lot"
	PropMonitored        Property = "monitored"
	PropVariable         Property = "variable"
	PropTraceID          Property = "trace_id"
	PropConference       Property = "conference"
)

// Change is one committed mutation of a channel field.
type Change struct {
	Channel  *Channel
	Property Property
	Old      any
	New      any
	At       time.Time
}

// Observer receives channel changes after they are committed.
type Observer interface {
	ChannelChanged(c Change)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(c Change)

func (f ObserverFunc) ChannelChanged(c Change) { f(c) }

// observerSet holds observers under handles so that any Observer,
// including uncomparable ones like ObserverFunc, can be unregistered.
type observerSet struct {
	mu      sync.RWMutex
	next    uint64
	entries []observerEntry
}

type observerEntry struct {
	id uint64
	o  Observer
}

// add registers o and returns a func that unregisters it. Calling the
// returned func more than once is harmless.
func (s *observerSet) add(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.entries = append(s.entries, observerEntry{id: id, o: o})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.entries = slices.DeleteFunc(s.entries, func(e observerEntry) bool { return e.id == id })
		})
	}
}

// snapshot returns the current observers in registration order.
func (s *observerSet) snapshot() []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Observer, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.o
	}
	return out
}
