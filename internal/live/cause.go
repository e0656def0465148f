package live

import "fmt"

// HangupCause is a Q.850 cause code reported with a hangup.
type HangupCause int

const (
	CauseUnknown           HangupCause = 0
	CauseUnallocated       HangupCause = 1
	CauseNoRouteDest       HangupCause = 3
	CauseNormalClearing    HangupCause = 16
	CauseUserBusy          HangupCause = 17
	CauseNoUserResponse    HangupCause = 18
	CauseNoAnswer          HangupCause = 19
	CauseSubscriberAbsent  HangupCause = 20
	CauseCallRejected      HangupCause = 21
	CauseNumberChanged     HangupCause = 22
	CauseNormalUnspecified HangupCause = 31
	CauseCongestion        HangupCause = 34
	CauseInterworking      HangupCause = 127
)

var causeInfo = map[HangupCause]struct {
	Name        string
	Description string
}{
	CauseUnknown:           {"unknown", "Unknown or no cause provided"},
	CauseUnallocated:       {"unallocated", "The number is not allocated"},
	CauseNoRouteDest:       {"no_route_destination", "No route to the destination"},
	CauseNormalClearing:    {"normal_clearing", "The call was hung up normally by one of the parties"},
	CauseUserBusy:          {"user_busy", "The destination was busy"},
	CauseNoUserResponse:    {"no_user_response", "The destination did not respond"},
	CauseNoAnswer:          {"no_answer", "The destination did not answer within the timeout"},
	CauseSubscriberAbsent:  {"subscriber_absent", "The destination is unreachable"},
	CauseCallRejected:      {"call_rejected", "The call was rejected by the destination"},
	CauseNumberChanged:     {"number_changed", "The destination number has changed"},
	CauseNormalUnspecified: {"normal_unspecified", "Normal call clearing, unspecified cause"},
	CauseCongestion:        {"congestion", "All circuits are busy or no circuit is available"},
	CauseInterworking:      {"interworking", "An interworking error occurred"},
}

// String returns the cause name.
func (c HangupCause) String() string {
	if info, ok := causeInfo[c]; ok {
		return info.Name
	}
	return fmt.Sprintf("cause_%d", int(c))
}

// Description returns a human-readable explanation of the cause.
func (c HangupCause) Description() string {
	if info, ok := causeInfo[c]; ok {
		return info.Description
	}
	return ""
}

// Code returns the numeric cause code.
func (c HangupCause) Code() int { return int(c) }

// MarshalText renders the cause name.
func (c HangupCause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
