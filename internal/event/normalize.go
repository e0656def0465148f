package event

import (
	"strconv"
	"strings"
)

// rawKinds maps lower-cased raw event names to the kind they normalize to.
// Both legacy and current protocol shapes are listed.
var rawKinds = map[string]Kind{
	"newchannel":      KindNewChannel,
	"newstate":        KindNewState,
	"rename":          KindRename,
	"hangup":          KindHangup,
	"dial":            KindDial,
	"dialbegin":       KindDial,
	"bridge":          KindBridge,
	"link":            KindLink,
	"unlink":          KindUnlink,
	"varset":          KindVarSet,
	"dtmf":            KindDTMF,
	"dtmfbegin":       KindDTMF,
	"dtmfend":         KindDTMF,
	"parkedcall":      KindParkedCall,
	"unparkedcall":    KindUnparkedCall,
	"monitorstart":    KindMonitorStart,
	"monitorstop":     KindMonitorStop,
	"newcallerid":     KindNewCallerID,
	"newaccountcode":  KindNewAccountCode,
	"newexten":        KindNewExten,
	"meetmejoin":      KindMeetMeJoin,
	"meetmeleave":     KindMeetMeLeave,
	"meetmeend":       KindMeetMeEnd,
	"confbridgeend":   KindMeetMeEnd,
	"confbridgejoin":  KindMeetMeJoin,
	"confbridgeleave": KindMeetMeLeave,
}

// KindOf returns the normalized kind a raw event maps to without building
// it. It is a single map lookup so the ingestion boundary can reject
// uninteresting events cheaply.
func KindOf(raw Raw) (Kind, bool) {
	name := strings.ToLower(raw.Name())
	kind, ok := rawKinds[name]
	if !ok {
		return "", false
	}
	if name == "dial" && strings.EqualFold(raw.Get("SubEvent"), "End") {
		return "", false
	}
	return kind, true
}

// Normalize translates a raw event into the stable vocabulary. Unrecognized
// raw kinds, and raw kinds with no legacy equivalent, yield false.
func Normalize(raw Raw) (Event, bool) {
	kind, ok := KindOf(raw)
	if !ok {
		return nil, false
	}
	name := strings.ToLower(raw.Name())
	if strings.HasPrefix(name, "confbridge") {
		return translateConfbridge(raw)
	}

	base := Base{ReceivedAt: raw.Received()}

	switch kind {
	case KindNewChannel:
		return NewChannel{
			Base:         base,
			UniqueID:     first(raw, "Uniqueid"),
			Channel:      first(raw, "Channel"),
			StateCode:    stateCode(raw),
			StateDesc:    first(raw, "ChannelStateDesc", "State"),
			CallerIDNum:  first(raw, "CallerIDNum", "CallerID"),
			CallerIDName: first(raw, "CallerIDName"),
			AccountCode:  first(raw, "AccountCode"),
			Context:      first(raw, "Context"),
			Exten:        first(raw, "Exten"),
		}, true

	case KindNewState:
		return NewState{
			Base:         base,
			UniqueID:     first(raw, "Uniqueid"),
			Channel:      first(raw, "Channel"),
			StateCode:    stateCode(raw),
			StateDesc:    first(raw, "ChannelStateDesc", "State"),
			CallerIDNum:  first(raw, "CallerIDNum", "CallerID"),
			CallerIDName: first(raw, "CallerIDName"),
		}, true

	case KindRename:
		return Rename{
			Base:     base,
			UniqueID: first(raw, "Uniqueid"),
			OldName:  first(raw, "Oldname", "Channel"),
			NewName:  first(raw, "Newname"),
		}, true

	case KindHangup:
		return Hangup{
			Base:      base,
			UniqueID:  first(raw, "Uniqueid"),
			Channel:   first(raw, "Channel"),
			Cause:     atoi(first(raw, "Cause"), 0),
			CauseText: first(raw, "Cause-txt"),
		}, true

	case KindDial:
		return Dial{
			Base:         base,
			SrcUniqueID:  first(raw, "SrcUniqueID", "Uniqueid", "UniqueID"),
			Source:       first(raw, "Source", "Channel"),
			DestUniqueID: first(raw, "DestUniqueID", "DestUniqueid"),
			Destination:  first(raw, "Destination", "DestChannel"),
			DialString:   first(raw, "Dialstring", "DialString"),
		}, true

	case KindBridge:
		state := BridgeLinked
		if strings.EqualFold(raw.Get("Bridgestate"), "Unlink") {
			state = BridgeUnlinked
		}
		return Bridge{Base: base, Pair: pair(raw), State: state}, true

	case KindLink:
		return Link{Base: base, Pair: pair(raw)}, true

	case KindUnlink:
		return Unlink{Base: base, Pair: pair(raw)}, true

	case KindVarSet:
		return VarSet{
			Base:     base,
			UniqueID: first(raw, "Uniqueid"),
			Channel:  first(raw, "Channel"),
			Variable: first(raw, "Variable"),
			Value:    raw.Get("Value"),
		}, true

	case KindDTMF:
		return dtmf(raw, name, base), true

	case KindParkedCall:
		return ParkedCall{
			Base:       base,
			UniqueID:   first(raw, "ParkeeUniqueid", "Uniqueid"),
			Channel:    first(raw, "ParkeeChannel", "Channel"),
			Exten:      first(raw, "ParkingSpace", "Exten"),
			ParkingLot: first(raw, "Parkinglot"),
			From:       first(raw, "ParkerDialString", "From"),
			Timeout:    atoi(first(raw, "ParkingTimeout", "Timeout"), 0),
		}, true

	case KindUnparkedCall:
		return UnparkedCall{
			Base:       base,
			UniqueID:   first(raw, "ParkeeUniqueid", "Uniqueid"),
			Channel:    first(raw, "ParkeeChannel", "Channel"),
			Exten:      first(raw, "ParkingSpace", "Exten"),
			ParkingLot: first(raw, "Parkinglot"),
		}, true

	case KindMonitorStart:
		return MonitorStart{Base: base, UniqueID: first(raw, "Uniqueid"), Channel: first(raw, "Channel")}, true

	case KindMonitorStop:
		return MonitorStop{Base: base, UniqueID: first(raw, "Uniqueid"), Channel: first(raw, "Channel")}, true

	case KindNewCallerID:
		return NewCallerID{
			Base:         base,
			UniqueID:     first(raw, "Uniqueid"),
			Channel:      first(raw, "Channel"),
			CallerIDNum:  first(raw, "CallerIDNum", "CallerID"),
			CallerIDName: first(raw, "CallerIDName"),
		}, true

	case KindNewAccountCode:
		return NewAccountCode{
			Base:        base,
			UniqueID:    first(raw, "Uniqueid"),
			Channel:     first(raw, "Channel"),
			AccountCode: first(raw, "AccountCode"),
		}, true

	case KindNewExten:
		return NewExten{
			Base:        base,
			UniqueID:    first(raw, "Uniqueid"),
			Channel:     first(raw, "Channel"),
			Context:     first(raw, "Context"),
			Exten:       first(raw, "Extension", "Exten"),
			Priority:    atoi(first(raw, "Priority"), 0),
			Application: first(raw, "Application"),
			AppData:     first(raw, "AppData"),
		}, true

	case KindMeetMeJoin:
		return MeetMeJoin{
			Base:         base,
			MeetMe:       first(raw, "Meetme"),
			UniqueID:     first(raw, "Uniqueid"),
			Channel:      first(raw, "Channel"),
			CallerIDNum:  first(raw, "CallerIDNum"),
			CallerIDName: first(raw, "CallerIDName"),
		}, true

	case KindMeetMeLeave:
		return MeetMeLeave{
			Base:         base,
			MeetMe:       first(raw, "Meetme"),
			UniqueID:     first(raw, "Uniqueid"),
			Channel:      first(raw, "Channel"),
			CallerIDNum:  first(raw, "CallerIDNum"),
			CallerIDName: first(raw, "CallerIDName"),
		}, true

	case KindMeetMeEnd:
		return MeetMeEnd{Base: base, MeetMe: first(raw, "Meetme")}, true
	}

	return nil, false
}

func dtmf(raw Raw, name string, base Base) DTMF {
	d := DTMF{
		Base:      base,
		UniqueID:  first(raw, "Uniqueid"),
		Channel:   first(raw, "Channel"),
		Digit:     first(raw, "Digit"),
		Direction: DTMFReceived,
	}
	if strings.EqualFold(raw.Get("Direction"), "Sent") {
		d.Direction = DTMFSent
	}
	switch name {
	case "dtmfbegin":
		d.Begin = true
	case "dtmfend":
		d.End = true
	default:
		d.Begin = yes(raw.Get("Begin"))
		d.End = yes(raw.Get("End"))
	}
	return d
}

func pair(raw Raw) Pair {
	return Pair{
		UniqueID1: first(raw, "Uniqueid1"),
		Channel1:  first(raw, "Channel1"),
		UniqueID2: first(raw, "Uniqueid2"),
		Channel2:  first(raw, "Channel2"),
	}
}

// stateCode reads the numeric channel state, NoState if absent.
func stateCode(raw Raw) int {
	if v, ok := raw.Lookup("ChannelState"); ok {
		return atoi(v, NoState)
	}
	return NoState
}

// first returns the first non-empty value among keys.
func first(raw Raw, keys ...string) string {
	for _, k := range keys {
		if v := raw.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func yes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}
