package track

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/parse"
)

// FileHistoryTracker watches <file-history-root>/<session-id>/<hash>@v<N>
// snapshot files and emits file_change events carrying a multiset line
// diff against the highest prior version present (§4.5). Path is never
// transmitted: only the content hash and version travel on the wire.
type FileHistoryTracker struct {
	root string
	emit Emit

	mu       sync.Mutex
	versions map[string]map[int]string // sessionID/hash -> version -> content

	stop chan struct{}
}

// NewFileHistoryTracker builds a FileHistoryTracker rooted at the
// file-history directory.
func NewFileHistoryTracker(root string, emit Emit) *FileHistoryTracker {
	return &FileHistoryTracker{
		root:     root,
		emit:     emit,
		versions: make(map[string]map[int]string),
		stop:     make(chan struct{}),
	}
}

// Run watches the file-history root until Stop is called.
func (t *FileHistoryTracker) Run() {
	watchRecursive(t.root, t.stop, func(ev fsnotify.Event) {
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}
		t.handle(ev.Name)
	})
}

// Stop cancels the watcher.
func (t *FileHistoryTracker) Stop() {
	close(t.stop)
}

// sessionKey derives the session id from a snapshot path of the form
// <root>/<session-id>/<hash>@v<N>.
func (t *FileHistoryTracker) sessionKey(path string) string {
	return filepath.Base(filepath.Dir(path))
}

func (t *FileHistoryTracker) handle(path string) {
	sessionID := t.sessionKey(path)
	fv, err := parse.ParseFileVersion(filepath.Base(path))
	if err != nil {
		log.Printf("track: file-history: skip %s: %v", path, err)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("track: file-history: read %s: %v", path, err)
		return
	}
	content := string(data)

	groupKey := sessionID + "/" + fv.Hash

	t.mu.Lock()
	group, ok := t.versions[groupKey]
	if !ok {
		group = make(map[int]string)
		t.versions[groupKey] = group
	}
	if _, already := group[fv.Version]; already {
		t.mu.Unlock()
		return
	}
	group[fv.Version] = content
	prevVersion, havePrev := highestBelow(group, fv.Version)
	// Keep only the most recent prior snapshot per hash (§4.5, §3): older
	// versions are on disk as the source of truth and don't need to live
	// in memory once a newer one has arrived.
	for v := range group {
		if v != fv.Version && v != prevVersion {
			delete(group, v)
		}
	}
	t.mu.Unlock()

	if parse.ShouldSkipVersion(fv.Version) {
		return
	}

	var prevContent string
	if havePrev {
		t.mu.Lock()
		prevContent = group[prevVersion]
		t.mu.Unlock()
	} else {
		log.Printf("track: file-history: no prior snapshot for %s@v%d, diffing against empty", fv.Hash, fv.Version)
	}

	diff := parse.CalculateDiff(prevContent, content)
	t.emit(event.FileChangePayload{
		SessionID:     sessionID,
		FileHash:      strings.ToLower(fv.Hash),
		Version:       fv.Version,
		LinesAdded:    diff.LinesAdded,
		LinesRemoved:  diff.LinesRemoved,
		LinesModified: diff.LinesModified,
	})
}

// highestBelow finds the largest key strictly less than version present in
// versions, if any.
func highestBelow(versions map[int]string, version int) (int, bool) {
	var candidates []int
	for v := range versions {
		if v < version {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	sort.Ints(candidates)
	return candidates[len(candidates)-1], true
}
