package track

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/aaronbassett/vibetea/internal/event"
)

// ProjectTracker scans the session-root directory tree and emits
// project_activity whenever a project's activity status flips (§4.5).
// Session files are small, so on every change it re-reads the file fully
// rather than tailing.
type ProjectTracker struct {
	root string
	emit Emit

	mu       sync.Mutex
	lastActive map[string]bool // slug/session -> last emitted is_active

	stop chan struct{}
}

// NewProjectTracker builds a ProjectTracker rooted at the session-log
// directory (the same root SessionTracker watches).
func NewProjectTracker(root string, emit Emit) *ProjectTracker {
	return &ProjectTracker{
		root:       root,
		emit:       emit,
		lastActive: make(map[string]bool),
		stop:       make(chan struct{}),
	}
}

// Run watches the session root until Stop is called.
func (t *ProjectTracker) Run() {
	watchRecursive(t.root, t.stop, func(ev fsnotify.Event) {
		if !strings.HasSuffix(ev.Name, ".jsonl") {
			return
		}
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		t.handle(ev.Name)
	})
}

// Stop cancels the watcher.
func (t *ProjectTracker) Stop() {
	close(t.stop)
}

// projectPathForSlug reconstructs an absolute project path from its slug
// form by replacing '-' with '/'. This inverse is lossy when the original
// path contained a literal dash (§9); the slug itself remains the
// authoritative identifier where that ambiguity matters.
func projectPathForSlug(slug string) string {
	return "/" + strings.ReplaceAll(slug, "-", "/")
}

func (t *ProjectTracker) handle(path string) {
	slug := filepath.Base(filepath.Dir(path))
	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	key := slug + "/" + sessionID

	isActive, err := isSessionActive(path)
	if err != nil {
		return
	}

	t.mu.Lock()
	last, seen := t.lastActive[key]
	t.lastActive[key] = isActive
	t.mu.Unlock()

	if seen && last == isActive {
		return
	}

	t.emit(event.ProjectActivityPayload{
		ProjectPath: projectPathForSlug(slug),
		SessionID:   sessionID,
		IsActive:    isActive,
	})
}

// isSessionActive reads a session jsonl file fully and reports whether no
// line parses as JSON with type == "summary" — a session with a summary
// record has ended and is no longer active.
func isSessionActive(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type == "summary" {
			return false, nil
		}
	}
	return true, scanner.Err()
}
