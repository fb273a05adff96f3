// Package event defines the VibeTea wire schema: the Event envelope, its
// payload variants, and the canonical JSON encoding both sides use as the
// Ed25519 signature pre-image.
package event

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"
)

// Type is the snake_case event_type discriminator.
type Type string

const (
	TypeSession          Type = "session"
	TypeActivity         Type = "activity"
	TypeTool             Type = "tool"
	TypeAgentSpawn       Type = "agent_spawn"
	TypeSkillInvocation  Type = "skill_invocation"
	TypeTokenUsage       Type = "token_usage"
	TypeSessionMetrics   Type = "session_metrics"
	TypeActivityPattern  Type = "activity_pattern"
	TypeModelDistribution Type = "model_distribution"
	TypeTodoProgress     Type = "todo_progress"
	TypeFileChange       Type = "file_change"
	TypeProjectActivity  Type = "project_activity"
	TypeSummary          Type = "summary"
	TypeError            Type = "error"
)

const (
	eventIDPrefix    = "evt_"
	eventIDSuffixLen = 20
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewEventID returns a fresh "evt_" + 20 random alphanumeric character ID.
func NewEventID() (string, error) {
	buf := make([]byte, eventIDSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("event: generate id: %w", err)
	}
	out := make([]byte, eventIDSuffixLen)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return eventIDPrefix + string(out), nil
}

// Event is the atomic unit of transport. Payload must be one of the
// Payload* types in this package; it is encoded via its own MarshalJSON.
type Event struct {
	EventID   string
	EventType Type
	Source    string
	Timestamp time.Time
	Payload   Payload
}

// Payload is implemented by every payload variant. CanonicalFields returns
// the payload's fields in the exact key order §3 specifies, for use by the
// canonical encoder.
type Payload interface {
	EventType() Type
	CanonicalFields() []Field
}

// Field is a single ordered key/value pair used by the canonical encoder.
type Field struct {
	Key   string
	Value interface{}
}

// New constructs an Event with a fresh event_id and the given timestamp.
func New(source string, ts time.Time, payload Payload) (Event, error) {
	id, err := NewEventID()
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:   id,
		EventType: payload.EventType(),
		Source:    source,
		Timestamp: ts,
		Payload:   payload,
	}, nil
}

// formatTimestamp renders RFC3339 UTC with millisecond precision.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Canonical returns the exact byte sequence to sign/verify: a JSON object
// with top-level keys in the order event_id, event_type, source, timestamp,
// payload, and payload keys in the order each variant declares.
func Canonical(e Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if err := writeField(&buf, "event_id", e.EventID, true); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "event_type", string(e.EventType), false); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "source", e.Source, false); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "timestamp", formatTimestamp(e.Timestamp), false); err != nil {
		return nil, err
	}

	buf.WriteString(`,"payload":`)
	if err := writeObject(&buf, e.Payload.CanonicalFields()); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key, value string, first bool) error {
	if !first {
		buf.WriteByte(',')
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return err
	}
	valJSON, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(keyJSON)
	buf.WriteByte(':')
	buf.Write(valJSON)
	return nil
}

func writeObject(buf *bytes.Buffer, fields []Field) error {
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(f.Key)
		if err != nil {
			return err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		if nested, ok := f.Value.([]Field); ok {
			if err := writeObject(buf, nested); err != nil {
				return err
			}
			continue
		}
		valJSON, err := json.Marshal(f.Value)
		if err != nil {
			return err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return nil
}

// wireEvent is the plain (non-canonical-ordered, but still valid) JSON shape
// used for transport where byte-exact key order doesn't matter — decoding
// only, since encoding for signing always goes through Canonical.
type wireEvent struct {
	EventID   string          `json:"event_id"`
	EventType Type            `json:"event_type"`
	Source    string          `json:"source"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the event using the canonical field order so that
// wire transport and the signature pre-image are always byte-identical.
func (e Event) MarshalJSON() ([]byte, error) {
	return Canonical(e)
}

// UnmarshalJSON decodes an Event, dispatching the payload by event_type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("event: decode envelope: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return fmt.Errorf("event: decode timestamp: %w", err)
	}
	payload, err := decodePayload(w.EventType, w.Payload)
	if err != nil {
		return fmt.Errorf("event: decode payload: %w", err)
	}
	e.EventID = w.EventID
	e.EventType = w.EventType
	e.Source = w.Source
	e.Timestamp = ts
	e.Payload = payload
	return nil
}
