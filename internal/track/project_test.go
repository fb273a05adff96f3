package track

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aaronbassett/vibetea/internal/event"
)

func TestProjectTrackerEmitsOnActivityChange(t *testing.T) {
	dir := t.TempDir()
	slugDir := filepath.Join(dir, "-home-dev-myproject")
	if err := os.MkdirAll(slugDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(slugDir, "sess-1.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"user"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewProjectTracker(dir, emit)
	tr.handle(path)

	payloads := get()
	if len(payloads) != 1 {
		t.Fatalf("expected one project_activity event, got %d", len(payloads))
	}
	pa := payloads[0].(event.ProjectActivityPayload)
	if !pa.IsActive {
		t.Fatal("expected is_active true for a session with no summary record")
	}
	if pa.ProjectPath != "/home/dev/myproject" {
		t.Fatalf("unexpected reconstructed project path: %q", pa.ProjectPath)
	}
}

func TestProjectTrackerOnlyEmitsOnFlip(t *testing.T) {
	dir := t.TempDir()
	slugDir := filepath.Join(dir, "-home-dev-myproject")
	if err := os.MkdirAll(slugDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(slugDir, "sess-1.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"user"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewProjectTracker(dir, emit)
	tr.handle(path)
	tr.handle(path) // same content, should not re-emit

	if len(get()) != 1 {
		t.Fatalf("expected exactly one emission across two identical reads, got %d", len(get()))
	}

	if err := os.WriteFile(path, []byte(`{"type":"user"}`+"\n"+`{"type":"summary"}`+"\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	tr.handle(path)

	payloads := get()
	if len(payloads) != 2 {
		t.Fatalf("expected a second emission after the activity flipped, got %d", len(payloads))
	}
	if payloads[1].(event.ProjectActivityPayload).IsActive {
		t.Fatal("expected is_active false once a summary record is present")
	}
}
