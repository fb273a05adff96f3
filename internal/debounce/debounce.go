// Package debounce implements per-key trailing-edge coalescing: repeated
// submissions under the same key within a delay window collapse into one
// published aggregate.
package debounce

import (
	"context"
	"log"
	"sync"
	"time"
)

// Merge combines a newly submitted value into the pending aggregate for a
// key. old is nil on the first submission for that key.
type Merge func(old, next interface{}) interface{}

// Debouncer coalesces submissions per key with trailing-edge semantics: the
// aggregate publishes `delay` after the *last* submission for that key, not
// the first. At most maxKeys aggregates may be outstanding at once; past
// that, the oldest pending key is dropped and Saturated is invoked.
type Debouncer struct {
	delay    time.Duration
	maxKeys  int
	merge    Merge
	publish  func(key string, value interface{})
	Saturated func(droppedKey string)

	mu      sync.Mutex
	pending map[string]*slot
	order   []string // insertion order, oldest first, for overflow eviction
	timers  map[string]*time.Timer
	closed  bool
}

type slot struct {
	value interface{}
}

// New builds a Debouncer. publish is called from the debouncer's own timer
// goroutines; it must not block.
func New(delay time.Duration, maxKeys int, merge Merge, publish func(key string, value interface{})) *Debouncer {
	return &Debouncer{
		delay:   delay,
		maxKeys: maxKeys,
		merge:   merge,
		publish: publish,
		pending: make(map[string]*slot),
		timers:  make(map[string]*time.Timer),
	}
}

// Submit merges value into the key's pending aggregate and (re)starts its
// timer. If the key is new and the debouncer is already at capacity, the
// oldest pending key is dropped (without publishing) to make room, and
// Saturated is invoked with its name.
func (d *Debouncer) Submit(key string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if existing, ok := d.pending[key]; ok {
		existing.value = d.merge(existing.value, value)
	} else {
		if d.maxKeys > 0 && len(d.pending) >= d.maxKeys {
			d.evictOldestLocked()
		}
		d.pending[key] = &slot{value: d.merge(nil, value)}
		d.order = append(d.order, key)
	}

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() { d.fire(key) })
}

func (d *Debouncer) evictOldestLocked() {
	if len(d.order) == 0 {
		return
	}
	oldest := d.order[0]
	d.order = d.order[1:]
	delete(d.pending, oldest)
	if t, ok := d.timers[oldest]; ok {
		t.Stop()
		delete(d.timers, oldest)
	}
	if d.Saturated != nil {
		d.Saturated(oldest)
	}
	log.Printf("debounce: saturated, dropped key %q", oldest)
}

func (d *Debouncer) fire(key string) {
	d.mu.Lock()
	s, ok := d.pending[key]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	delete(d.timers, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	d.publish(key, s.value)
}

// Close cancels all timers and drops pending aggregates without publishing.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for _, t := range d.timers {
		t.Stop()
	}
	d.pending = make(map[string]*slot)
	d.timers = make(map[string]*time.Timer)
	d.order = nil
}

// Wait blocks until ctx is done, then closes the debouncer. Convenience for
// callers that want the debouncer's lifetime tied to a context.
func (d *Debouncer) Wait(ctx context.Context) {
	<-ctx.Done()
	d.Close()
}
