package track

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/parse"
	"github.com/aaronbassett/vibetea/internal/tokenize"
)

// SkillTracker tails the flat history.jsonl file and emits a
// skill_invocation event for every slash-command record whose "display"
// field names a skill (§4.5). Unlike SessionTracker it has no directory
// tree to follow: history.jsonl is a single append-only file.
type SkillTracker struct {
	path string
	emit Emit

	mu     sync.Mutex
	offset int64

	stop chan struct{}
}

// NewSkillTracker builds a SkillTracker for the given history.jsonl path.
func NewSkillTracker(path string, emit Emit) *SkillTracker {
	return &SkillTracker{path: path, emit: emit, stop: make(chan struct{})}
}

// Run watches history.jsonl's parent directory and tails the file on every
// write until Stop is called.
func (t *SkillTracker) Run() {
	dir := parentDir(t.path)
	watch(dir, t.stop, func(ev fsnotify.Event) {
		if ev.Name != t.path {
			return
		}
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		t.tail()
	})
}

// Stop cancels the watcher.
func (t *SkillTracker) Stop() {
	close(t.stop)
}

func (t *SkillTracker) tail() {
	t.mu.Lock()
	offset := t.offset
	t.mu.Unlock()

	lines, newOffset, err := parse.TailLines(t.path, offset)
	if err != nil {
		return
	}

	t.mu.Lock()
	t.offset = newOffset
	t.mu.Unlock()

	for _, line := range lines {
		rec, err := parse.ParseHistoryLine(line)
		if err != nil {
			continue
		}
		skillName, ok := tokenize.ExtractSkillName(rec.Display)
		if !ok {
			continue
		}
		t.emit(event.SkillInvocationPayload{
			SessionID: rec.SessionID,
			SkillName: skillName,
			Project:   rec.Project,
		})
	}
}
