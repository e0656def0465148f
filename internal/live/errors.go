package live

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchChannel is returned when the switch rejects a command because
	// the target channel no longer exists.
	ErrNoSuchChannel = errors.New("no such channel")

	// ErrRecording is returned when a recording control is not permitted in
	// the channel's current state.
	ErrRecording = errors.New("recording operation not permitted")

	// ErrInvalidArgument is returned before any command is sent when an
	// argument fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
)

// recordingErrors are error texts that mean a recording control failed
// rather than the channel being gone.
var recordingErrors = map[string]bool{
	"Cannot set mute flag": true,
}

// ActionError describes a command the switch rejected.
type ActionError struct {
	Channel string
	Action  string
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s on channel %q: %v", e.Action, e.Channel, e.Err)
	}
	return fmt.Sprintf("%s on channel %q: %v: %s", e.Action, e.Channel, e.Err, e.Message)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// classify maps an error response message to its domain error.
func classify(channel, action, message string) error {
	err := ErrNoSuchChannel
	if recordingErrors[message] {
		err = ErrRecording
	}
	return &ActionError{Channel: channel, Action: action, Message: message, Err: err}
}
