package track

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aaronbassett/vibetea/internal/event"
)

func TestSkillTrackerEmitsOnSlashCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	line := `{"display":"/review pr-123","timestamp":1,"project":"vibetea","sessionId":"sess-1"}` + "\n"
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewSkillTracker(path, emit)
	tr.tail()

	payloads := get()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 event, got %d", len(payloads))
	}
	sp, ok := payloads[0].(event.SkillInvocationPayload)
	if !ok {
		t.Fatalf("expected SkillInvocationPayload, got %#v", payloads[0])
	}
	if sp.SkillName != "review" || sp.Project != "vibetea" || sp.SessionID != "sess-1" {
		t.Fatalf("unexpected payload: %+v", sp)
	}
}

func TestSkillTrackerIgnoresNonSlashCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	line := `{"display":"just some text","timestamp":1,"project":"vibetea","sessionId":"sess-1"}` + "\n"
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewSkillTracker(path, emit)
	tr.tail()

	if len(get()) != 0 {
		t.Fatalf("expected no events for a non-skill command, got %d", len(get()))
	}
}

func TestSkillTrackerResumesFromOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	first := `{"display":"/one","timestamp":1,"project":"p","sessionId":"s1"}` + "\n"
	if err := os.WriteFile(path, []byte(first), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewSkillTracker(path, emit)
	tr.tail()
	if len(get()) != 1 {
		t.Fatalf("expected 1 event after first tail, got %d", len(get()))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString(`{"display":"/two","timestamp":2,"project":"p","sessionId":"s1"}` + "\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	tr.tail()
	payloads := get()
	if len(payloads) != 2 {
		t.Fatalf("expected 2 events total after second tail, got %d", len(payloads))
	}
}
