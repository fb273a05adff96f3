package track

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aaronbassett/vibetea/internal/event"
)

func TestFileHistoryTrackerSkipsFirstVersion(t *testing.T) {
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "sess-1")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(sessionDir, "0123456789abcdef@v1")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewFileHistoryTracker(dir, emit)
	tr.handle(path)

	if len(get()) != 0 {
		t.Fatalf("expected no event for version 1, got %+v", get())
	}
}

func TestFileHistoryTrackerDiffsAgainstPriorVersion(t *testing.T) {
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "sess-1")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	v1 := filepath.Join(sessionDir, "0123456789abcdef@v1")
	v2 := filepath.Join(sessionDir, "0123456789abcdef@v2")
	if err := os.WriteFile(v1, []byte("a\nb\nb\nc"), 0o644); err != nil {
		t.Fatalf("write v1: %v", err)
	}
	if err := os.WriteFile(v2, []byte("a\nb\nd"), 0o644); err != nil {
		t.Fatalf("write v2: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewFileHistoryTracker(dir, emit)
	tr.handle(v1)
	tr.handle(v2)

	payloads := get()
	if len(payloads) != 1 {
		t.Fatalf("expected exactly one file_change event, got %d", len(payloads))
	}
	fc, ok := payloads[0].(event.FileChangePayload)
	if !ok {
		t.Fatalf("expected FileChangePayload, got %#v", payloads[0])
	}
	if fc.LinesAdded != 1 || fc.LinesRemoved != 2 || fc.LinesModified != 1 {
		t.Fatalf("unexpected diff: %+v", fc)
	}
	if fc.SessionID != "sess-1" || fc.FileHash != "0123456789abcdef" || fc.Version != 2 {
		t.Fatalf("unexpected identity fields: %+v", fc)
	}
}

func TestFileHistoryTrackerGapDiffsAgainstEmpty(t *testing.T) {
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "sess-1")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	v3 := filepath.Join(sessionDir, "0123456789abcdef@v3")
	if err := os.WriteFile(v3, []byte("x\ny"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewFileHistoryTracker(dir, emit)
	tr.handle(v3)

	payloads := get()
	if len(payloads) != 1 {
		t.Fatalf("expected one event, got %d", len(payloads))
	}
	fc := payloads[0].(event.FileChangePayload)
	if fc.LinesAdded != 2 || fc.LinesRemoved != 0 {
		t.Fatalf("expected a diff against empty content, got %+v", fc)
	}
}

func TestFileHistoryTrackerSkipsInvalidFilename(t *testing.T) {
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "sess-1")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	bad := filepath.Join(sessionDir, "not-a-valid-name")
	if err := os.WriteFile(bad, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	emit, get := collectingEmit()
	tr := NewFileHistoryTracker(dir, emit)
	tr.handle(bad)

	if len(get()) != 0 {
		t.Fatalf("expected no event for invalid filename, got %+v", get())
	}
}
