package live

import "time"

// Hangup is the recorded outcome of a hung-up channel.
type Hangup struct {
	At        time.Time   `json:"at"`
	Cause     HangupCause `json:"cause"`
	CauseCode int         `json:"cause_code"`
	Text      string      `json:"text,omitempty"`
}

// Snapshot is an immutable copy of a channel, suitable for JSON and for
// archiving.
type Snapshot struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Created          time.Time         `json:"created"`
	State            ChannelState      `json:"state"`
	StateHistory     []StateEntry      `json:"state_history"`
	CallerID         CallerID          `json:"caller_id,omitzero"`
	Account          string            `json:"account,omitempty"`
	TraceID          string            `json:"trace_id,omitempty"`
	Hangup           *Hangup           `json:"hangup,omitempty"`
	CurrentExtension *Extension        `json:"current_extension,omitempty"`
	Extensions       []ExtensionEntry  `json:"extensions,omitempty"`
	DialedChannels   []PeerEntry       `json:"dialed_channels,omitempty"`
	DialingChannel   string            `json:"dialing_channel,omitempty"`
	LinkedChannel    string            `json:"linked_channel,omitempty"`
	LinkHistory      []LinkEntry       `json:"link_history,omitempty"`
	WasLinked        bool              `json:"was_linked"`
	DTMFReceived     string            `json:"dtmf_received,omitempty"`
	DTMFSent         string            `json:"dtmf_sent,omitempty"`
	ParkedAt         *Extension        `json:"parked_at,omitempty"`
	ParkingLot       string            `json:"parking_lot,omitempty"`
	Monitored        bool              `json:"monitored"`
	Conference       string            `json:"conference,omitempty"`
	Variables        map[string]string `json:"variables,omitempty"`
}

// Snapshot copies the channel. Each collection is copied under its own lock,
// so the result is consistent per field rather than across fields.
func (c *Channel) Snapshot() Snapshot {
	c.mu.RLock()
	s := Snapshot{
		ID:           c.id,
		Name:         c.name,
		Created:      c.created,
		State:        c.state,
		CallerID:     c.callerID,
		Account:      c.account,
		TraceID:      c.traceID,
		WasLinked:    c.wasLinked,
		DTMFReceived: c.dtmfReceived,
		DTMFSent:     c.dtmfSent,
		ParkingLot:   c.parkingLot,
		Monitored:    c.monitored,
		Conference:   c.conference,
	}
	if c.state == StateHungup {
		s.Hangup = &Hangup{
			At:        c.removed,
			Cause:     c.hangupCause,
			CauseCode: c.hangupCause.Code(),
			Text:      c.hangupText,
		}
	}
	if c.parkedAt != nil {
		ext := *c.parkedAt
		s.ParkedAt = &ext
	}
	c.mu.RUnlock()

	s.StateHistory = c.StateHistory()
	s.Extensions = c.ExtensionHistory()
	if ext, ok := c.CurrentExtension(); ok {
		s.CurrentExtension = &ext
	}
	s.DialedChannels = c.DialedChannelHistory()
	s.DialingChannel, _ = c.DialingChannel()
	s.LinkedChannel, _ = c.LinkedChannel()
	s.LinkHistory = c.LinkedChannelHistory()
	s.Variables = c.Variables()
	return s
}
