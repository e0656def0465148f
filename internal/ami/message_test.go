package ami

import (
	"bufio"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func read(t *testing.T, wire string) (*Message, error) {
	t.Helper()
	return ReadMessage(bufio.NewReader(strings.NewReader(wire)), func() time.Time { return stamp })
}

func TestReadMessage(t *testing.T) {
	msg, err := read(t, "\r\n\r\nEvent: Hangup\r\nUniqueid: 1700000000.1\r\nCause-txt: Normal Clearing\r\nAppData: SIP/200,30,tT:x\r\n\r\n")
	require.NoError(t, err)

	assert.True(t, msg.IsEvent())
	assert.False(t, msg.IsResponse())
	assert.Equal(t, "Hangup", msg.Name())
	assert.Equal(t, "1700000000.1", msg.Get("UNIQUEID"))
	assert.Equal(t, "Normal Clearing", msg.Get("cause-txt"))
	assert.Equal(t, "SIP/200,30,tT:x", msg.Get("AppData"))
	assert.Equal(t, []string{"Event", "Uniqueid", "Cause-txt", "AppData"}, msg.Keys())
	assert.Equal(t, stamp, msg.Received())

	_, ok := msg.Lookup("Missing")
	assert.False(t, ok)
}

func TestReadMessageCommandOutput(t *testing.T) {
	msg, err := read(t, "Response: Follows\r\nPrivilege: Command\r\nChannel              Location\r\n1 active channel\r\n--END COMMAND--\r\n\r\n")
	require.NoError(t, err)

	assert.True(t, msg.IsResponse())
	assert.Equal(t, "Channel              Location\n1 active channel\n--END COMMAND--", msg.Get("Output"))
}

func TestReadMessageSequence(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("Event: A\r\n\r\nEvent: B\r\nX: 1\r\n"))
	now := func() time.Time { return stamp }

	first, err := ReadMessage(r, now)
	require.NoError(t, err)
	assert.Equal(t, "A", first.Name())

	second, err := ReadMessage(r, now)
	require.NoError(t, err)
	assert.Equal(t, "B", second.Name())
	assert.Equal(t, "1", second.Get("X"))

	_, err = ReadMessage(r, now)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRepeatedKeyKeepsLatestValue(t *testing.T) {
	msg, err := read(t, "Event: VarSet\r\nValue: a\r\nValue: b\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "b", msg.Get("Value"))
	assert.Equal(t, []string{"Event", "Value"}, msg.Keys())
}

func TestActionEncode(t *testing.T) {
	a := SetVar("SIP/100-1", "NOTE", "line one\r\nline two\nthree")

	wire := string(a.Encode())
	assert.True(t, strings.HasPrefix(wire, "Action: Setvar\r\nActionID: "+a.ActionID()+"\r\n"))
	assert.Contains(t, wire, "Value: line one line two three\r\n")
	assert.True(t, strings.HasSuffix(wire, "\r\n\r\n"))
	assert.Equal(t, 1, strings.Count(wire, "\r\n\r\n"))

	parsed, err := read(t, wire)
	require.NoError(t, err)
	assert.Equal(t, "Setvar", parsed.Get("Action"))
	assert.Equal(t, "NOTE", parsed.Get("Variable"))
}

func TestActionIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewAction("Ping").ActionID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestActionBuilders(t *testing.T) {
	assert.Empty(t, Hangup("SIP/1", 0).Get("Cause"))
	assert.Equal(t, "17", Hangup("SIP/1", 17).Get("Cause"))

	m := Monitor("SIP/1", "", "", false)
	assert.Empty(t, m.Get("File"))
	assert.Empty(t, m.Get("Mix"))
	assert.NotContains(t, string(m.Encode()), "File:")

	rb := RedirectBoth("SIP/1", "SIP/2", "default", "300", 1)
	assert.Equal(t, "SIP/2", rb.Get("ExtraChannel"))
	assert.Equal(t, "default", rb.Get("ExtraContext"))
	assert.Equal(t, "1", rb.Get("extrapriority"))

	mute := MixMonitorMute("SIP/1", 1, "write")
	assert.Equal(t, "write", mute.Get("Direction"))
	assert.Equal(t, "1", mute.Get("State"))

	login := Login("admin", "secret")
	assert.Equal(t, "on", login.Get("Events"))
}
