package export

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebas/amilive/internal/event"
)

var received = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func hangup() event.Hangup {
	return event.Hangup{
		Base:      event.Base{ReceivedAt: received},
		UniqueID:  "1700000000.1",
		Channel:   "SIP/100-1",
		Cause:     16,
		CauseText: "Normal Clearing",
	}
}

type fakeConn struct {
	mu      sync.Mutex
	msgs    []*nats.Msg
	err     error
	flushed int
	closed  bool
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *fakeConn) FlushWithContext(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushed++
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func TestEnvelope(t *testing.T) {
	a := NewEnvelope(hangup())
	b := NewEnvelope(hangup())

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, event.KindHangup, a.Kind)
	assert.Equal(t, received, a.Time)
	assert.Equal(t, "amilive.events.hangup", a.Subject(""))
	assert.Equal(t, "pbx1.hangup", a.Subject("pbx1"))
}

func TestJSONEncoding(t *testing.T) {
	env := NewEnvelope(hangup())

	data, err := JSONEncoder{}.Encode(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env.ID, decoded["id"])
	assert.Equal(t, "hangup", decoded["kind"])
	body := decoded["event"].(map[string]any)
	assert.Equal(t, "1700000000.1", body["unique_id"])
	assert.Equal(t, float64(16), body["cause"])
}

func TestProtoEncoding(t *testing.T) {
	env := NewEnvelope(hangup())

	data, err := ProtoEncoder{}.Encode(env)
	require.NoError(t, err)

	decoded, err := DecodeProto(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, decoded["id"])
	assert.Equal(t, "hangup", decoded["kind"])
	body := decoded["event"].(map[string]any)
	assert.Equal(t, "SIP/100-1", body["channel"])
	assert.Equal(t, "Normal Clearing", body["cause_text"])
}

func TestEncoderFor(t *testing.T) {
	enc, err := EncoderFor("json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", enc.ContentType())

	enc, err = EncoderFor("proto")
	require.NoError(t, err)
	assert.Equal(t, "application/protobuf", enc.ContentType())

	_, err = EncoderFor("xml")
	assert.Error(t, err)
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeConn{}
	pub := newNATSPublisher(conn, "pbx", JSONEncoder{}, nil)
	env := NewEnvelope(hangup())

	require.NoError(t, pub.Publish(context.Background(), env))

	require.Len(t, conn.msgs, 1)
	msg := conn.msgs[0]
	assert.Equal(t, "pbx.hangup", msg.Subject)
	assert.Equal(t, env.ID, msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "application/json", msg.Header.Get("Content-Type"))
	assert.Contains(t, string(msg.Data), `"unique_id":"1700000000.1"`)

	published, failed := pub.Stats()
	assert.Equal(t, int64(1), published)
	assert.Zero(t, failed)

	require.NoError(t, pub.Close())
	assert.Equal(t, 1, conn.flushed)
	assert.True(t, conn.closed)
}

func TestNATSPublisherFailure(t *testing.T) {
	conn := &fakeConn{err: nats.ErrConnectionClosed}
	pub := newNATSPublisher(conn, DefaultSubjectPrefix, nil, nil)

	err := pub.Publish(context.Background(), NewEnvelope(hangup()))
	require.ErrorIs(t, err, nats.ErrConnectionClosed)
	assert.Contains(t, err.Error(), "amilive.events.hangup")

	_, failed := pub.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestChannelPublisherDropsWhenFull(t *testing.T) {
	pub := NewChannelPublisher(1)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, NewEnvelope(hangup())))
	require.NoError(t, pub.Publish(ctx, NewEnvelope(hangup())))
	assert.Equal(t, int64(1), pub.Dropped())

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Publish(ctx, NewEnvelope(hangup())))

	var got []Envelope
	for e := range pub.Envelopes() {
		got = append(got, e)
	}
	assert.Len(t, got, 1)
}

type failingPublisher struct{ NoopPublisher }

func (failingPublisher) Publish(context.Context, Envelope) error { return errors.New("down") }

func TestMultiPublisherDeliversDespiteFailure(t *testing.T) {
	local := NewChannelPublisher(10)
	pub := NewMultiPublisher(failingPublisher{}, local, NewLoggingPublisher("", nil))

	err := pub.Publish(context.Background(), NewEnvelope(hangup()))
	assert.EqualError(t, err, "down")
	assert.Len(t, local.Envelopes(), 1)
	assert.NoError(t, pub.Close())
}

func TestExporter(t *testing.T) {
	local := NewChannelPublisher(10)
	x := NewExporter(local, nil)

	assert.Equal(t, "exporter", x.Name())
	assert.ElementsMatch(t, event.AllKinds, x.RequiredKinds())

	require.NoError(t, x.OnEvent(context.Background(), hangup()))
	e := <-local.Envelopes()
	assert.Equal(t, event.KindHangup, e.Kind)
	assert.Equal(t, hangup(), e.Event)

	only := NewExporter(local, []event.Kind{event.KindDial})
	assert.Equal(t, []event.Kind{event.KindDial}, only.RequiredKinds())
}
