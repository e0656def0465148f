package event

import "strings"

// translateConfbridge maps bridge-conference events onto the legacy MeetMe
// shapes so consumers written against conference rooms keep working.
// ConfbridgeStart has no legacy counterpart and is dropped.
func translateConfbridge(raw Raw) (Event, bool) {
	base := Base{ReceivedAt: raw.Received()}

	switch strings.ToLower(raw.Name()) {
	case "confbridgeend":
		return MeetMeEnd{Base: base, MeetMe: first(raw, "Conference")}, true

	case "confbridgejoin":
		return MeetMeJoin{
			Base:         base,
			MeetMe:       first(raw, "BridgeName", "Conference"),
			UniqueID:     first(raw, "Uniqueid"),
			Channel:      first(raw, "Channel"),
			CallerIDNum:  first(raw, "CallerIDNum"),
			CallerIDName: first(raw, "CallerIDName"),
		}, true

	case "confbridgeleave":
		return MeetMeLeave{
			Base:         base,
			MeetMe:       first(raw, "Conference", "BridgeName"),
			UniqueID:     first(raw, "Uniqueid"),
			Channel:      first(raw, "Channel"),
			CallerIDNum:  first(raw, "CallerIDNum"),
			CallerIDName: first(raw, "CallerIDName"),
		}, true
	}

	return nil, false
}
