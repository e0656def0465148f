// Package event defines the normalized event vocabulary consumed by the
// dispatch pipeline and the live channel model, and the normalizer that maps
// version-specific raw manager events onto it.
package event

import "time"

// Kind identifies a normalized event type.
type Kind string

const (
	KindNewChannel     Kind = "new_channel"
	KindNewState       Kind = "new_state"
	KindRename         Kind = "rename"
	KindHangup         Kind = "hangup"
	KindDial           Kind = "dial"
	KindBridge         Kind = "bridge"
	KindLink           Kind = "link"
	KindUnlink         Kind = "unlink"
	KindVarSet         Kind = "var_set"
	KindDTMF           Kind = "dtmf"
	KindParkedCall     Kind = "parked_call"
	KindUnparkedCall   Kind = "unparked_call"
	KindMonitorStart   Kind = "monitor_start"
	KindMonitorStop    Kind = "monitor_stop"
	KindNewCallerID    Kind = "new_caller_id"
	KindNewAccountCode Kind = "new_account_code"
	KindNewExten       Kind = "new_exten"
	KindMeetMeJoin     Kind = "meetme_join"
	KindMeetMeLeave    Kind = "meetme_leave"
	KindMeetMeEnd      Kind = "meetme_end"
)

// AllKinds lists every normalized kind.
var AllKinds = []Kind{
	KindNewChannel, KindNewState, KindRename, KindHangup, KindDial,
	KindBridge, KindLink, KindUnlink, KindVarSet, KindDTMF,
	KindParkedCall, KindUnparkedCall, KindMonitorStart, KindMonitorStop,
	KindNewCallerID, KindNewAccountCode, KindNewExten,
	KindMeetMeJoin, KindMeetMeLeave, KindMeetMeEnd,
}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Raw is a protocol event as read off the wire.
type Raw interface {
	Name() string
	Get(key string) string
	Lookup(key string) (string, bool)
	Received() time.Time
}

// Event is a normalized event. Implementations are value types and are never
// mutated after construction.
type Event interface {
	Kind() Kind
	Received() time.Time
}

// Base carries the fields common to every normalized event.
type Base struct {
	ReceivedAt time.Time `json:"received_at"`
}

// Received returns when the raw event was read off the wire.
func (b Base) Received() time.Time { return b.ReceivedAt }

// NoState marks an event that carries no channel state.
const NoState = -1

// NewChannel announces a channel.
type NewChannel struct {
	Base
	UniqueID     string `json:"unique_id"`
	Channel      string `json:"channel"`
	StateCode    int    `json:"state_code"`
	StateDesc    string `json:"state_desc,omitempty"`
	CallerIDNum  string `json:"caller_id_num,omitempty"`
	CallerIDName string `json:"caller_id_name,omitempty"`
	AccountCode  string `json:"account_code,omitempty"`
	Context      string `json:"context,omitempty"`
	Exten        string `json:"exten,omitempty"`
}

func (NewChannel) Kind() Kind { return KindNewChannel }

// NewState reports a channel state transition.
type NewState struct {
	Base
	UniqueID     string `json:"unique_id"`
	Channel      string `json:"channel"`
	StateCode    int    `json:"state_code"`
	StateDesc    string `json:"state_desc,omitempty"`
	CallerIDNum  string `json:"caller_id_num,omitempty"`
	CallerIDName string `json:"caller_id_name,omitempty"`
}

func (NewState) Kind() Kind { return KindNewState }

// Rename reports a channel name change.
type Rename struct {
	Base
	UniqueID string `json:"unique_id"`
	OldName  string `json:"old_name"`
	NewName  string `json:"new_name"`
}

func (Rename) Kind() Kind { return KindRename }

// Hangup reports that a channel left the switch.
type Hangup struct {
	Base
	UniqueID  string `json:"unique_id"`
	Channel   string `json:"channel"`
	Cause     int    `json:"cause"`
	CauseText string `json:"cause_text,omitempty"`
}

func (Hangup) Kind() Kind { return KindHangup }

// Dial reports that a source channel started dialing a destination channel.
type Dial struct {
	Base
	SrcUniqueID  string `json:"src_unique_id"`
	Source       string `json:"source"`
	DestUniqueID string `json:"dest_unique_id"`
	Destination  string `json:"destination"`
	DialString   string `json:"dial_string,omitempty"`
}

func (Dial) Kind() Kind { return KindDial }

// Pair names the two channels of a bridge.
type Pair struct {
	UniqueID1 string `json:"unique_id1"`
	Channel1  string `json:"channel1"`
	UniqueID2 string `json:"unique_id2"`
	Channel2  string `json:"channel2"`
}

// BridgeState is the direction of a bridge event.
type BridgeState string

const (
	BridgeLinked   BridgeState = "link"
	BridgeUnlinked BridgeState = "unlink"
)

// Bridge reports two channels being joined or separated.
type Bridge struct {
	Base
	Pair
	State BridgeState `json:"state"`
}

func (Bridge) Kind() Kind { return KindBridge }

// Link is the legacy form of a bridge being established.
type Link struct {
	Base
	Pair
}

func (Link) Kind() Kind { return KindLink }

// Unlink is the legacy form of a bridge being torn down.
type Unlink struct {
	Base
	Pair
}

func (Unlink) Kind() Kind { return KindUnlink }

// VarSet reports a channel variable assignment.
type VarSet struct {
	Base
	UniqueID string `json:"unique_id"`
	Channel  string `json:"channel"`
	Variable string `json:"variable"`
	Value    string `json:"value"`
}

func (VarSet) Kind() Kind { return KindVarSet }

// DTMFDirection tells whether a digit was received from or sent to the
// channel's far end.
type DTMFDirection string

const (
	DTMFReceived DTMFDirection = "received"
	DTMFSent     DTMFDirection = "sent"
)

// DTMF reports a keypad digit.
type DTMF struct {
	Base
	UniqueID  string        `json:"unique_id"`
	Channel   string        `json:"channel"`
	Digit     string        `json:"digit"`
	Direction DTMFDirection `json:"direction"`
	Begin     bool          `json:"begin"`
	End       bool          `json:"end"`
}

func (DTMF) Kind() Kind { return KindDTMF }

// ParkedCall reports a channel being parked.
type ParkedCall struct {
	Base
	UniqueID   string `json:"unique_id"`
	Channel    string `json:"channel"`
	Exten      string `json:"exten"`
	ParkingLot string `json:"parking_lot,omitempty"`
	From       string `json:"from,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
}

func (ParkedCall) Kind() Kind { return KindParkedCall }

// UnparkedCall reports a parked channel being retrieved.
type UnparkedCall struct {
	Base
	UniqueID   string `json:"unique_id"`
	Channel    string `json:"channel"`
	Exten      string `json:"exten"`
	ParkingLot string `json:"parking_lot,omitempty"`
}

func (UnparkedCall) Kind() Kind { return KindUnparkedCall }

// MonitorStart reports that recording started.
type MonitorStart struct {
	Base
	UniqueID string `json:"unique_id"`
	Channel  string `json:"channel"`
}

func (MonitorStart) Kind() Kind { return KindMonitorStart }

// MonitorStop reports that recording stopped.
type MonitorStop struct {
	Base
	UniqueID string `json:"unique_id"`
	Channel  string `json:"channel"`
}

func (MonitorStop) Kind() Kind { return KindMonitorStop }

// NewCallerID reports a caller identity change.
type NewCallerID struct {
	Base
	UniqueID     string `json:"unique_id"`
	Channel      string `json:"channel"`
	CallerIDNum  string `json:"caller_id_num,omitempty"`
	CallerIDName string `json:"caller_id_name,omitempty"`
}

func (NewCallerID) Kind() Kind { return KindNewCallerID }

// NewAccountCode reports a billing account change.
type NewAccountCode struct {
	Base
	UniqueID    string `json:"unique_id"`
	Channel     string `json:"channel"`
	AccountCode string `json:"account_code"`
}

func (NewAccountCode) Kind() Kind { return KindNewAccountCode }

// NewExten reports a dialplan step.
type NewExten struct {
	Base
	UniqueID    string `json:"unique_id"`
	Channel     string `json:"channel"`
	Context     string `json:"context"`
	Exten       string `json:"exten"`
	Priority    int    `json:"priority"`
	Application string `json:"application,omitempty"`
	AppData     string `json:"app_data,omitempty"`
}

func (NewExten) Kind() Kind { return KindNewExten }

// MeetMeJoin reports a channel joining a conference.
type MeetMeJoin struct {
	Base
	MeetMe       string `json:"meetme"`
	UniqueID     string `json:"unique_id"`
	Channel      string `json:"channel"`
	CallerIDNum  string `json:"caller_id_num,omitempty"`
	CallerIDName string `json:"caller_id_name,omitempty"`
}

func (MeetMeJoin) Kind() Kind { return KindMeetMeJoin }

// MeetMeLeave reports a channel leaving a conference.
type MeetMeLeave struct {
	Base
	MeetMe       string `json:"meetme"`
	UniqueID     string `json:"unique_id"`
	Channel      string `json:"channel"`
	CallerIDNum  string `json:"caller_id_num,omitempty"`
	CallerIDName string `json:"caller_id_name,omitempty"`
}

func (MeetMeLeave) Kind() Kind { return KindMeetMeLeave }

// MeetMeEnd reports that a conference ended.
type MeetMeEnd struct {
	Base
	MeetMe string `json:"meetme"`
}

func (MeetMeEnd) Kind() Kind { return KindMeetMeEnd }
