package track

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aaronbassett/vibetea/internal/debounce"
	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/parse"
)

// TodoTracker watches a directory of whole-file todo JSON documents named
// <session>-agent-<session>.json, debounced per-file because editors
// replace-then-rename (§4.5). It registers itself as the StateMap's
// abandonment handler to emit a final todo_progress when a session ends
// with outstanding work.
type TodoTracker struct {
	root  string
	state *StateMap
	emit  Emit

	debouncer *debounce.Debouncer

	mu           sync.Mutex
	lastComplete map[string]int64 // session id -> last observed completed count

	stop chan struct{}
}

// NewTodoTracker builds a TodoTracker rooted at the todos directory,
// debouncing per-file writes by delay and correlating session lifecycle
// through the shared state map.
func NewTodoTracker(root string, delay time.Duration, state *StateMap, emit Emit) *TodoTracker {
	t := &TodoTracker{
		root:         root,
		state:        state,
		emit:         emit,
		lastComplete: make(map[string]int64),
		stop:         make(chan struct{}),
	}
	t.debouncer = debounce.New(delay, 0, mergeLatestPath, func(_ string, value interface{}) {
		t.load(value.(string))
	})
	state.OnAbandonment(t.onAbandon)
	return t
}

// mergeLatestPath is the debouncer's Merge function: only the most recent
// path matters (the file content, not the notification, carries data).
func mergeLatestPath(_, next interface{}) interface{} {
	return next
}

// Run watches the todos directory until Stop is called.
func (t *TodoTracker) Run() {
	watch(t.root, t.stop, func(ev fsnotify.Event) {
		if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
			return
		}
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}
		t.debouncer.Submit(ev.Name, ev.Name)
	})
}

// Stop cancels the watcher and the debouncer, dropping any pending
// aggregate without publishing.
func (t *TodoTracker) Stop() {
	close(t.stop)
	t.debouncer.Close()
}

func (t *TodoTracker) load(path string) {
	sessionID, err := parse.ParseTodoFilename(filepath.Base(path))
	if err != nil {
		return
	}

	// Open question (§9): writes after session end are no-ops.
	if t.state.Phase(sessionID) == PhaseEnded {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	entries, err := parse.ParseTodoFile(data)
	if err != nil {
		return
	}
	counts := parse.CountTodos(entries)

	t.mu.Lock()
	t.lastComplete[sessionID] = int64(counts.Completed)
	t.mu.Unlock()

	t.state.UpdateTodoCounts(sessionID, counts.InProgress, counts.Pending)

	t.emit(event.TodoProgressPayload{
		SessionID:  sessionID,
		Completed:  int64(counts.Completed),
		InProgress: int64(counts.InProgress),
		Pending:    int64(counts.Pending),
		Abandoned:  0,
	})
}

// onAbandon is the StateMap's abandonment handler (§4.5): fired exactly
// once per session when it ends with outstanding in_progress/pending work.
func (t *TodoTracker) onAbandon(sessionID string, inProgress, pending int) {
	t.mu.Lock()
	completed := t.lastComplete[sessionID]
	t.mu.Unlock()

	t.emit(event.TodoProgressPayload{
		SessionID:  sessionID,
		Completed:  completed,
		InProgress: 0,
		Pending:    0,
		Abandoned:  int64(inProgress + pending),
	})
}
