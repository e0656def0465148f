// Package export republishes normalized events to external consumers.
// The Exporter is a dispatch listener; Publishers carry envelopes to a
// transport such as NATS.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sebas/amilive/internal/event"
)

// DefaultSubjectPrefix is prepended to the kind to form the subject.
const DefaultSubjectPrefix = "amilive.events"

// Envelope wraps a normalized event for transport. ID is unique per
// envelope and is used by consumers for deduplication.
type Envelope struct {
	ID    string      `json:"id"`
	Kind  event.Kind  `json:"kind"`
	Time  time.Time   `json:"time"`
	Event event.Event `json:"event"`
}

// NewEnvelope wraps evt with a fresh id.
func NewEnvelope(evt event.Event) Envelope {
	return Envelope{
		ID:    uuid.NewString(),
		Kind:  evt.Kind(),
		Time:  evt.Received(),
		Event: evt,
	}
}

// Subject returns the subject the envelope is published to.
func (e Envelope) Subject(prefix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + string(e.Kind)
}

// Encoder serializes envelopes.
type Encoder interface {
	Encode(e Envelope) ([]byte, error)
	ContentType() string
}

// JSONEncoder encodes envelopes as JSON.
type JSONEncoder struct{}

func (JSONEncoder) Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", e.Kind, err)
	}
	return data, nil
}

func (JSONEncoder) ContentType() string { return "application/json" }

// ProtoEncoder encodes envelopes as a google.protobuf.Struct, so consumers
// need no generated schema.
type ProtoEncoder struct{}

func (ProtoEncoder) Encode(e Envelope) ([]byte, error) {
	s, err := toStruct(e)
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", e.Kind, err)
	}
	return data, nil
}

func (ProtoEncoder) ContentType() string { return "application/protobuf" }

func toStruct(e Envelope) (*structpb.Struct, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", e.Kind, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten %s envelope: %w", e.Kind, err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build struct for %s envelope: %w", e.Kind, err)
	}
	return s, nil
}

// DecodeProto reverses ProtoEncoder into a generic map.
func DecodeProto(data []byte) (map[string]any, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return s.AsMap(), nil
}

// EncoderFor returns the encoder registered under name: "json" or "proto".
func EncoderFor(name string) (Encoder, error) {
	switch name {
	case "", "json":
		return JSONEncoder{}, nil
	case "proto", "protobuf":
		return ProtoEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown export encoding %q", name)
	}
}
