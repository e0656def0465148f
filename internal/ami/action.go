package ami

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// field is one ordered action header.
type field struct {
	key   string
	value string
}

// Action is an outbound command. Every action carries a unique ActionID used
// to correlate its response.
type Action struct {
	name     string
	actionID string
	fields   []field
}

// NewAction creates an action with a fresh ActionID.
func NewAction(name string) *Action {
	return &Action{
		name:     name,
		actionID: uuid.New().String(),
	}
}

// Name returns the action name.
func (a *Action) Name() string { return a.name }

// ActionID returns the correlation id.
func (a *Action) ActionID() string { return a.actionID }

// With appends a header.
func (a *Action) With(key, value string) *Action {
	a.fields = append(a.fields, field{key: key, value: value})
	return a
}

// WithOptional appends a header only when value is non-empty.
func (a *Action) WithOptional(key, value string) *Action {
	if value == "" {
		return a
	}
	return a.With(key, value)
}

// Get returns the first value stored under key.
func (a *Action) Get(key string) string {
	for _, f := range a.fields {
		if strings.EqualFold(f.key, key) {
			return f.value
		}
	}
	return ""
}

// Encode serializes the action. CR and LF inside values would terminate the
// block early, so they are replaced by spaces.
func (a *Action) Encode() []byte {
	var sb strings.Builder
	writeLine(&sb, "Action", a.name)
	writeLine(&sb, "ActionID", a.actionID)
	for _, f := range a.fields {
		writeLine(&sb, f.key, f.value)
	}
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

var valueEscaper = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func writeLine(sb *strings.Builder, key, value string) {
	sb.WriteString(key)
	sb.WriteString(": ")
	sb.WriteString(valueEscaper.Replace(value))
	sb.WriteString("\r\n")
}

// Login authenticates the session in plain-text mode.
func Login(username, secret string) *Action {
	return NewAction("Login").With("Username", username).With("Secret", secret).With("Events", "on")
}

// Logoff ends the session.
func Logoff() *Action {
	return NewAction("Logoff")
}

// Hangup hangs up a channel. A cause of zero sends no Cause header.
func Hangup(channel string, cause int) *Action {
	a := NewAction("Hangup").With("Channel", channel)
	if cause > 0 {
		a.With("Cause", strconv.Itoa(cause))
	}
	return a
}

// AbsoluteTimeout schedules a hangup after the given number of seconds.
func AbsoluteTimeout(channel string, seconds int) *Action {
	return NewAction("AbsoluteTimeout").With("Channel", channel).With("Timeout", strconv.Itoa(seconds))
}

// Redirect transfers a channel to a dialplan location.
func Redirect(channel, context, exten string, priority int) *Action {
	return NewAction("Redirect").
		With("Channel", channel).
		With("Context", context).
		With("Exten", exten).
		With("Priority", strconv.Itoa(priority))
}

// RedirectBoth transfers a channel and its bridged peer to the same location.
func RedirectBoth(channel, extraChannel, context, exten string, priority int) *Action {
	p := strconv.Itoa(priority)
	return NewAction("Redirect").
		With("Channel", channel).
		With("ExtraChannel", extraChannel).
		With("Context", context).
		With("Exten", exten).
		With("Priority", p).
		With("ExtraContext", context).
		With("ExtraExten", exten).
		With("ExtraPriority", p)
}

// GetVar reads a channel variable.
func GetVar(channel, variable string) *Action {
	return NewAction("Getvar").With("Channel", channel).With("Variable", variable)
}

// SetVar writes a channel variable.
func SetVar(channel, variable, value string) *Action {
	return NewAction("Setvar").With("Channel", channel).With("Variable", variable).With("Value", value)
}

// PlayDTMF plays a DTMF digit on a channel.
func PlayDTMF(channel, digit string) *Action {
	return NewAction("PlayDTMF").With("Channel", channel).With("Digit", digit)
}

// Monitor starts recording a channel.
func Monitor(channel, file, format string, mix bool) *Action {
	a := NewAction("Monitor").With("Channel", channel).WithOptional("File", file).WithOptional("Format", format)
	if mix {
		a.With("Mix", "true")
	}
	return a
}

// ChangeMonitor changes the recording file name.
func ChangeMonitor(channel, file string) *Action {
	return NewAction("ChangeMonitor").With("Channel", channel).With("File", file)
}

// StopMonitor stops recording.
func StopMonitor(channel string) *Action {
	return NewAction("StopMonitor").With("Channel", channel)
}

// PauseMonitor pauses recording.
func PauseMonitor(channel string) *Action {
	return NewAction("PauseMonitor").With("Channel", channel)
}

// UnpauseMonitor resumes recording.
func UnpauseMonitor(channel string) *Action {
	return NewAction("UnpauseMonitor").With("Channel", channel)
}

// MixMonitorMute mutes (state 1) or unmutes (state 0) one direction of a
// MixMonitor recording.
func MixMonitorMute(channel string, state int, direction string) *Action {
	return NewAction("MixMonitorMute").
		With("Channel", channel).
		With("Direction", direction).
		With("State", strconv.Itoa(state))
}
