package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewEventIDFormat(t *testing.T) {
	id, err := NewEventID()
	if err != nil {
		t.Fatalf("NewEventID: %v", err)
	}
	if !strings.HasPrefix(id, "evt_") {
		t.Fatalf("expected evt_ prefix, got %q", id)
	}
	if len(id) != len("evt_")+eventIDSuffixLen {
		t.Fatalf("expected length %d, got %d", len("evt_")+eventIDSuffixLen, len(id))
	}
}

func TestCanonicalFieldOrder(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6*int(time.Millisecond), time.UTC)
	e := Event{
		EventID:   "evt_abc",
		EventType: TypeActivity,
		Source:    "workstation-1",
		Timestamp: ts,
		Payload:   ActivityPayload{SessionID: "sess-1"},
	}
	raw, err := Canonical(e)
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	want := `{"event_id":"evt_abc","event_type":"activity","source":"workstation-1","timestamp":"2026-01-02T03:04:05.006Z","payload":{"session_id":"sess-1"}}`
	if string(raw) != want {
		t.Fatalf("canonical mismatch:\n got: %s\nwant: %s", raw, want)
	}
}

func TestCanonicalIsDeterministic(t *testing.T) {
	ts := time.Now().UTC()
	e := Event{EventID: "evt_x", EventType: TypeTool, Source: "s", Timestamp: ts,
		Payload: ToolPayload{SessionID: "s1", ToolName: "grep", Status: ToolStarted}}
	a, err1 := Canonical(e)
	b, err2 := Canonical(e)
	if err1 != nil || err2 != nil {
		t.Fatalf("Canonical errors: %v %v", err1, err2)
	}
	if string(a) != string(b) {
		t.Fatalf("canonical encoding not deterministic")
	}
}

func TestRoundTripJSON(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	e, err := New("src-1", ts, FileChangePayload{
		SessionID: "sess", FileHash: "abc0123456789abc", Version: 2,
		LinesAdded: 1, LinesRemoved: 2, LinesModified: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.EventID != e.EventID || got.Source != e.Source || got.EventType != e.EventType {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, e)
	}
	fc, ok := got.Payload.(FileChangePayload)
	if !ok {
		t.Fatalf("expected FileChangePayload, got %T", got.Payload)
	}
	if fc.FileHash != "abc0123456789abc" || fc.Version != 2 {
		t.Fatalf("payload round trip mismatch: %+v", fc)
	}
}
