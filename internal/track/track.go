// Package track implements the Monitor's state-machine trackers (§4.5):
// one per on-disk input, each turning raw file-change notifications into
// typed Event payloads. Watchers are best-effort and may coalesce or drop
// events under pressure (§4.4), so every tracker here is idempotent.
package track

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aaronbassett/vibetea/internal/event"
)

// Emit hands a freshly produced payload to the rest of the Monitor
// (privacy filter, then Sender). Trackers never see a Sender directly.
type Emit func(payload event.Payload)

// SessionPhase is the lifecycle phase SessionTracker assigns to a session
// in the shared correlation map.
type SessionPhase string

const (
	PhaseActive SessionPhase = "active"
	PhaseEnded  SessionPhase = "ended"
)

// watch opens an fsnotify watcher rooted at dir and invokes handle for
// every event until stop is closed. Watcher setup failures are logged and
// cause the function to return, matching §5's "dropping a tracker cancels
// its watcher" cancellation model.
func watch(dir string, stop <-chan struct{}, handle func(fsnotify.Event)) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("track: create watcher for %s: %v", dir, err)
		return
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		log.Printf("track: watch %s: %v", dir, err)
		return
	}

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			handle(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("track: watcher error on %s: %v", dir, err)
		}
	}
}

// watchRecursive watches root and every directory beneath it, following
// newly created subdirectories as they appear (project roots grow new
// project-slug directories over time). Non-directory events are passed
// through to handle unchanged.
func watchRecursive(root string, stop <-chan struct{}, handle func(fsnotify.Event)) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("track: create watcher for %s: %v", root, err)
		return
	}
	defer w.Close()

	addTree := func(dir string) {
		_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if addErr := w.Add(path); addErr != nil {
				log.Printf("track: watch %s: %v", path, addErr)
			}
			return nil
		})
	}
	addTree(root)

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addTree(ev.Name)
				}
			}
			handle(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("track: watcher error on %s: %v", root, err)
		}
	}
}

// debounceWindow is a 300 ms trailing-edge settle window. No tracker reads
// it: TodoTracker takes its delay from its constructor, which the Monitor
// fills from config.DebounceDelay (100 ms by default).
const debounceWindow = 300 * time.Millisecond

// toolTimeout is how long an unmatched tool_use waits for its tool_result
// before being force-completed (§4.5).
const toolTimeout = 10 * time.Minute

// parentDir returns the directory a flat-file tracker should watch, since
// fsnotify only reports events on watched directories, not individual files.
func parentDir(path string) string {
	dir := filepath.Dir(path)
	if dir == "" {
		return "."
	}
	return dir
}
