// Package ami implements the thin wire boundary of the PBX manager protocol:
// "Key: Value" message blocks, action serialization and a TCP connection that
// correlates responses by ActionID and hands events to a callback.
package ami

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrMalformed is returned when a block cannot be parsed.
var ErrMalformed = errors.New("malformed manager message")

// Message is one protocol block: ordered "Key: Value" lines terminated by a
// blank line. Key lookup is case-insensitive.
type Message struct {
	keys     []string
	values   map[string]string
	received time.Time
}

// NewMessage creates an empty message stamped with its receipt time.
func NewMessage(received time.Time) *Message {
	return &Message{
		values:   make(map[string]string),
		received: received,
	}
}

// Set stores a field. A repeated key keeps its original position and the
// latest value.
func (m *Message) Set(key, value string) {
	lk := strings.ToLower(key)
	if _, exists := m.values[lk]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[lk] = value
}

// Get returns the value for key, or "" if absent.
func (m *Message) Get(key string) string {
	return m.values[strings.ToLower(key)]
}

// Lookup returns the value for key and whether it was present.
func (m *Message) Lookup(key string) (string, bool) {
	v, ok := m.values[strings.ToLower(key)]
	return v, ok
}

// Keys returns the field names in wire order.
func (m *Message) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Name returns the event name, empty for responses.
func (m *Message) Name() string {
	return m.Get("Event")
}

// Received returns when the block was read off the wire.
func (m *Message) Received() time.Time {
	return m.received
}

// IsEvent reports whether the block is an unsolicited event.
func (m *Message) IsEvent() bool {
	_, ok := m.Lookup("Event")
	return ok
}

// IsResponse reports whether the block answers an action.
func (m *Message) IsResponse() bool {
	_, ok := m.Lookup("Response")
	return ok
}

// String renders the block for logging.
func (m *Message) String() string {
	var sb strings.Builder
	for i, k := range m.keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(m.values[strings.ToLower(k)])
	}
	return sb.String()
}

// ReadMessage reads one block. Lines without a colon (command output) are
// accumulated under the "Output" key. Leading blank lines are skipped.
func ReadMessage(r *bufio.Reader, now func() time.Time) (*Message, error) {
	var msg *Message
	var output []string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && msg != nil && strings.TrimSpace(line) == "" {
				break
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if msg == nil {
				continue
			}
			break
		}
		if msg == nil {
			msg = NewMessage(now())
		}

		key, value, found := strings.Cut(line, ":")
		if !found || strings.ContainsAny(key, " \t") {
			output = append(output, line)
			continue
		}
		msg.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	if len(output) > 0 {
		msg.Set("Output", strings.Join(output, "\n"))
	}
	if len(msg.keys) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrMalformed)
	}
	return msg, nil
}
