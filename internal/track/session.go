package track

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/parse"
)

type pendingTool struct {
	sessionID string
	toolName  string
	startedAt time.Time
}

// SessionTracker watches <session-root>/<project-slug>/<session-uuid>.jsonl
// files, tailing each incrementally and emitting session/activity/tool
// events (§4.5).
type SessionTracker struct {
	root  string
	state *StateMap
	emit  Emit
	observe func(sessionID string, rec parse.SessionRecord)

	mu      sync.Mutex
	offsets map[string]int64
	seen    map[string]bool // path -> session.started already emitted
	pending map[string]*pendingTool

	stop chan struct{}
}

// NewSessionTracker builds a SessionTracker rooted at the assistant's
// session-log directory.
func NewSessionTracker(root string, state *StateMap, emit Emit) *SessionTracker {
	return &SessionTracker{
		root:    root,
		state:   state,
		emit:    emit,
		offsets: make(map[string]int64),
		seen:    make(map[string]bool),
		pending: make(map[string]*pendingTool),
		stop:    make(chan struct{}),
	}
}

// Run watches the session root until Stop is called, tailing every
// session jsonl file it discovers and sweeping timed-out tool_use records.
func (t *SessionTracker) Run() {
	go t.sweepLoop()
	watchRecursive(t.root, t.stop, func(ev fsnotify.Event) {
		if !strings.HasSuffix(ev.Name, ".jsonl") {
			return
		}
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		t.tail(ev.Name)
	})
}

// Stop cancels the watcher and the timeout sweep.
func (t *SessionTracker) Stop() {
	close(t.stop)
}

// SetObserver registers a callback invoked for every tailed record, in
// addition to the normal wire emission, so StatsTracker can accumulate
// model/token/timestamp data that never itself goes on the wire.
func (t *SessionTracker) SetObserver(observe func(sessionID string, rec parse.SessionRecord)) {
	t.observe = observe
}

func (t *SessionTracker) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweepTimedOutTools()
		}
	}
}

func (t *SessionTracker) sweepTimedOutTools() {
	now := time.Now()
	var timedOut []*pendingTool
	t.mu.Lock()
	for id, p := range t.pending {
		if now.Sub(p.startedAt) >= toolTimeout {
			timedOut = append(timedOut, p)
			delete(t.pending, id)
		}
	}
	t.mu.Unlock()

	for _, p := range timedOut {
		t.emit(event.ToolPayload{SessionID: p.sessionID, ToolName: p.toolName, Status: event.ToolCompleted})
	}
}

func (t *SessionTracker) sessionIDFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".jsonl")
}

func (t *SessionTracker) tail(path string) {
	t.mu.Lock()
	offset := t.offsets[path]
	firstSeen := t.seen[path]
	t.mu.Unlock()

	result, err := parse.TailSessionFile(path, offset)
	if err != nil {
		return
	}

	t.mu.Lock()
	t.offsets[path] = result.NewOffset
	t.seen[path] = firstSeen || len(result.Records) > 0
	t.mu.Unlock()

	sessionID := t.sessionIDFor(path)

	for i, rec := range result.Records {
		if i == 0 && !firstSeen {
			t.emit(event.SessionPayload{SessionID: sessionID, Action: event.SessionStarted})
		}
		t.emit(event.ActivityPayload{SessionID: sessionID})

		if t.observe != nil {
			t.observe(sessionID, rec)
		}

		switch rec.Type {
		case parse.RecordToolUse:
			t.mu.Lock()
			t.pending[rec.ToolUseID] = &pendingTool{sessionID: sessionID, toolName: rec.ToolName, startedAt: time.Now()}
			t.mu.Unlock()
			t.emit(event.ToolPayload{SessionID: sessionID, ToolName: rec.ToolName, Status: event.ToolStarted})
			if agentType, ok := rec.AgentType(); ok {
				t.emit(event.AgentSpawnPayload{SessionID: sessionID, AgentType: agentType})
			}
		case parse.RecordToolResult:
			t.mu.Lock()
			p, ok := t.pending[rec.ToolUseID]
			if ok {
				delete(t.pending, rec.ToolUseID)
			}
			t.mu.Unlock()
			if ok {
				t.emit(event.ToolPayload{SessionID: sessionID, ToolName: p.toolName, Status: event.ToolCompleted})
			}
		case parse.RecordSummary:
			t.state.MarkEnded(sessionID)
			t.emit(event.SessionPayload{SessionID: sessionID, Action: event.SessionEnded})
			t.emit(event.SummaryPayload{Text: event.NeutralSummaryText})
		}
	}
}
