package live

import (
	"fmt"
	"strings"
)

// ChannelState is the lifecycle state of a channel.
type ChannelState int

const (
	// StateUnknown is reported when the switch sends a code we do not know.
	StateUnknown ChannelState = iota
	// StateDown means the channel is allocated but idle.
	StateDown
	// StateReserved means the channel is reserved for an outbound call.
	StateReserved
	// StateOffHook means the line is off hook.
	StateOffHook
	// StateDialing means digits are being dialed.
	StateDialing
	// StateRing means the line is ringing at the far end.
	StateRing
	// StateRinging means the channel itself is ringing.
	StateRinging
	// StateUp means the call is answered.
	StateUp
	// StateBusy means the far end is busy.
	StateBusy
	// StateDialingOffHook means digits were dialed while off hook.
	StateDialingOffHook
	// StatePreRing means the channel has detected a ring but not started ringing.
	StatePreRing
	// StateHungup is the terminal state.
	StateHungup
)

// protocolStates maps the numeric codes sent by the switch.
var protocolStates = map[int]ChannelState{
	0:  StateDown,
	1:  StateReserved,
	2:  StateOffHook,
	3:  StateDialing,
	4:  StateRing,
	5:  StateRinging,
	6:  StateUp,
	7:  StateBusy,
	8:  StateDialingOffHook,
	9:  StatePreRing,
	10: StateUnknown,
}

var stateNames = map[ChannelState]string{
	StateUnknown:        "UNKNOWN",
	StateDown:           "DOWN",
	StateReserved:       "RSRVD",
	StateOffHook:        "OFFHOOK",
	StateDialing:        "DIALING",
	StateRing:           "RING",
	StateRinging:        "RINGING",
	StateUp:             "UP",
	StateBusy:           "BUSY",
	StateDialingOffHook: "DIALING_OFFHOOK",
	StatePreRing:        "PRERING",
	StateHungup:         "HUNGUP",
}

// descriptions holds the textual state names some protocol versions send
// instead of, or alongside, the numeric code.
var descriptions = map[string]ChannelState{
	"down":            StateDown,
	"rsrvd":           StateReserved,
	"reserved":        StateReserved,
	"offhook":         StateOffHook,
	"off hook":        StateOffHook,
	"dialing":         StateDialing,
	"ring":            StateRing,
	"ringing":         StateRinging,
	"up":              StateUp,
	"busy":            StateBusy,
	"dialing offhook": StateDialingOffHook,
	"pre-ring":        StatePreRing,
	"prering":         StatePreRing,
	"unknown":         StateUnknown,
}

// String returns the string representation of the state
func (s ChannelState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// MarshalText renders the state name.
func (s ChannelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal returns true once the channel has hung up.
func (s ChannelState) IsTerminal() bool {
	return s == StateHungup
}

// StateFromCode maps a protocol state code.
func StateFromCode(code int) (ChannelState, bool) {
	s, ok := protocolStates[code]
	return s, ok
}

// StateFromDescription maps a textual protocol state.
func StateFromDescription(desc string) (ChannelState, bool) {
	s, ok := descriptions[strings.ToLower(strings.TrimSpace(desc))]
	return s, ok
}

// stateOf resolves a state from an event's code, falling back to its
// description. ok is false if the event carries neither.
func stateOf(code int, desc string) (ChannelState, bool) {
	if s, ok := StateFromCode(code); ok {
		return s, true
	}
	if desc == "" {
		return StateUnknown, false
	}
	if s, ok := StateFromDescription(desc); ok {
		return s, true
	}
	return StateUnknown, true
}
