package live

import (
	"context"
	"log/slog"

	"github.com/sebas/amilive/internal/event"
)

// Tracker is the dispatch listener that applies normalized events to the
// registry. It relies on being called from a single worker so that events
// for one channel are applied in order.
type Tracker struct {
	reg *Registry
	log *slog.Logger
}

// NewTracker returns a tracker feeding reg.
func NewTracker(reg *Registry, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{reg: reg, log: log}
}

// Name identifies the tracker in dispatch logs.
func (t *Tracker) Name() string { return "live-tracker" }

// RequiredKinds lists the events that affect channel state.
func (t *Tracker) RequiredKinds() []event.Kind {
	return []event.Kind{
		event.KindNewChannel,
		event.KindNewState,
		event.KindRename,
		event.KindHangup,
		event.KindDial,
		event.KindBridge,
		event.KindVarSet,
		event.KindDTMF,
		event.KindParkedCall,
		event.KindUnparkedCall,
		event.KindMonitorStart,
		event.KindMonitorStop,
		event.KindNewCallerID,
		event.KindNewAccountCode,
		event.KindNewExten,
		event.KindMeetMeJoin,
		event.KindMeetMeLeave,
	}
}

// OnEvent applies evt.
func (t *Tracker) OnEvent(_ context.Context, evt event.Event) error {
	at := evt.Received()

	switch e := evt.(type) {
	case event.NewChannel:
		t.newChannel(e)

	case event.NewState:
		c, ok := t.find(e.UniqueID, e.Channel)
		if !ok {
			t.log.Debug("[Live] State change for unknown channel", "id", e.UniqueID, "channel", e.Channel)
			return nil
		}
		if id := (CallerID{Name: e.CallerIDName, Number: e.CallerIDNum}); !id.IsZero() {
			c.applyCallerID(at, id)
		}
		if s, ok := stateOf(e.StateCode, e.StateDesc); ok {
			c.applyStateChange(at, s)
		}

	case event.Rename:
		c, ok := t.find(e.UniqueID, e.OldName)
		if !ok {
			return nil
		}
		if e.UniqueID != "" && c.ID() != e.UniqueID {
			t.reg.rekey(c, at, e.UniqueID)
		}
		if e.NewName != "" {
			t.reg.rename(c, at, e.NewName)
		}

	case event.Hangup:
		c, ok := t.find(e.UniqueID, e.Channel)
		if !ok {
			return nil
		}
		if c.applyHangup(at, HangupCause(e.Cause), e.CauseText) {
			t.reg.hungup(c)
		}

	case event.Dial:
		src, okSrc := t.find(e.SrcUniqueID, e.Source)
		dst, okDst := t.find(e.DestUniqueID, e.Destination)
		if !okSrc || !okDst {
			t.log.Debug("[Live] Dial between unknown channels", "source", e.Source, "destination", e.Destination)
			return nil
		}
		src.applyDialed(at, dst.ID())
		dst.applyDialing(at, src.ID())

	case event.Bridge:
		if e.State == event.BridgeUnlinked {
			t.unlink(e.Pair, evt)
		} else {
			t.link(e.Pair, evt)
		}

	case event.Link:
		t.link(e.Pair, evt)

	case event.Unlink:
		t.unlink(e.Pair, evt)

	case event.VarSet:
		if c, ok := t.find(e.UniqueID, e.Channel); ok && e.Variable != "" {
			c.updateVariable(at, e.Variable, e.Value)
		}

	case event.DTMF:
		if e.Begin && !e.End {
			return nil
		}
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyDTMF(at, e.Digit, e.Direction == event.DTMFSent)
		}

	case event.ParkedCall:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyParked(at, &Extension{Exten: e.Exten}, e.ParkingLot)
		}

	case event.UnparkedCall:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyParked(at, nil, "")
		}

	case event.MonitorStart:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyMonitored(at, true)
		}

	case event.MonitorStop:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyMonitored(at, false)
		}

	case event.NewCallerID:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyCallerID(at, CallerID{Name: e.CallerIDName, Number: e.CallerIDNum})
		}

	case event.NewAccountCode:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyAccount(at, e.AccountCode)
		}

	case event.NewExten:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyExtension(at, Extension{
				Context:     e.Context,
				Exten:       e.Exten,
				Priority:    e.Priority,
				Application: e.Application,
				AppData:     e.AppData,
			})
		}

	case event.MeetMeJoin:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyConference(at, e.MeetMe)
		}

	case event.MeetMeLeave:
		if c, ok := t.find(e.UniqueID, e.Channel); ok {
			c.applyConference(at, "")
		}
	}
	return nil
}

func (t *Tracker) newChannel(e event.NewChannel) {
	if e.UniqueID == "" {
		t.log.Debug("[Live] Ignoring channel without unique id", "channel", e.Channel)
		return
	}
	at := e.Received()
	c, created := t.reg.create(at, e.UniqueID, e.Channel)
	if !created {
		t.log.Debug("[Live] Channel already known", "id", e.UniqueID, "channel", e.Channel)
		if e.Channel != "" {
			t.reg.rename(c, at, e.Channel)
		}
	}
	if id := (CallerID{Name: e.CallerIDName, Number: e.CallerIDNum}); !id.IsZero() {
		c.applyCallerID(at, id)
	}
	if e.AccountCode != "" {
		c.applyAccount(at, e.AccountCode)
	}
	if s, ok := stateOf(e.StateCode, e.StateDesc); ok {
		c.applyStateChange(at, s)
	}
}

func (t *Tracker) link(p event.Pair, evt event.Event) {
	c1, ok1 := t.find(p.UniqueID1, p.Channel1)
	c2, ok2 := t.find(p.UniqueID2, p.Channel2)
	if !ok1 || !ok2 {
		t.log.Debug("[Live] Link between unknown channels", "channel1", p.Channel1, "channel2", p.Channel2)
		return
	}
	at := evt.Received()
	c1.applyLink(at, c2.ID())
	c2.applyLink(at, c1.ID())
}

func (t *Tracker) unlink(p event.Pair, evt event.Event) {
	at := evt.Received()
	if c, ok := t.find(p.UniqueID1, p.Channel1); ok {
		c.applyUnlink(at)
	}
	if c, ok := t.find(p.UniqueID2, p.Channel2); ok {
		c.applyUnlink(at)
	}
}

// find looks a channel up by unique id, falling back to its name.
func (t *Tracker) find(id, name string) (*Channel, bool) {
	if id != "" {
		if c, ok := t.reg.Get(id); ok {
			return c, true
		}
	}
	if name != "" {
		return t.reg.FindByName(name)
	}
	return nil, false
}
