// Package broadcast fans out ingested events to WebSocket subscribers
// (§4.10). Each subscriber holds its own bounded buffer and an optional
// filter; a persistently lagging subscriber is disconnected.
package broadcast

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/aaronbassett/vibetea/internal/event"
)

// DefaultCapacity is the default per-subscriber buffer depth (§5 resource caps).
const DefaultCapacity = 1024

// DefaultMaxLags is the number of consecutive Lagged notifications tolerated
// before a subscriber is disconnected.
const DefaultMaxLags = 3

// Filter decides whether an event should be delivered to a given subscriber.
type Filter func(e event.Event) bool

// laggedNotice is delivered in-band when a subscriber's buffer overflows.
type laggedNotice struct {
	Lagged uint64 `json:"lagged"`
}

type envelope struct {
	Kind   string        `json:"kind"`
	Event  *event.Event  `json:"event,omitempty"`
	Lagged *laggedNotice `json:"lagged_notice,omitempty"`
}

// Subscriber is a single registered consumer of the broadcast stream. It
// holds the most recent capacity events it hasn't yet delivered; overflow
// drops the oldest and is reported as a single coalesced Lagged notice the
// next time the subscriber reads, rather than one notice per drop.
type Subscriber struct {
	id       uint64
	filter   Filter
	capacity int
	maxLags  int

	mu         sync.Mutex
	buffer     [][]byte
	pendingLag uint64
	consecLags int
	closed     bool
	wake       chan struct{}

	onTooLaggy func(id uint64)
}

// Next blocks until a message is available, the subscriber is closed, or
// stop fires. A lag notice, when one is owed, is always returned before any
// buffered event. ok is false once the subscriber has been closed and has
// nothing left queued.
func (s *Subscriber) Next(stop <-chan struct{}) (msg []byte, ok bool) {
	for {
		s.mu.Lock()
		if s.pendingLag > 0 {
			n := s.pendingLag
			s.pendingLag = 0
			s.consecLags++
			tooLaggy := s.consecLags >= s.maxLags
			s.mu.Unlock()

			notice, err := json.Marshal(envelope{Kind: "lagged", Lagged: &laggedNotice{Lagged: n}})
			if tooLaggy {
				log.Printf("broadcast: subscriber %d exceeded lag threshold, disconnecting", s.id)
				if s.onTooLaggy != nil {
					s.onTooLaggy(s.id)
				}
			}
			if err != nil {
				log.Printf("broadcast: marshal lagged notice: %v", err)
				continue
			}
			return notice, true
		}

		if len(s.buffer) > 0 {
			data := s.buffer[0]
			s.buffer = s.buffer[1:]
			s.consecLags = 0
			s.mu.Unlock()
			return data, true
		}

		if s.closed {
			s.mu.Unlock()
			return nil, false
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-stop:
			return nil, false
		}
	}
}

// offer appends data to the subscriber's buffer, dropping the oldest
// buffered message (and recording the drop) if the buffer is already full.
func (s *Subscriber) offer(data []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.buffer) >= s.capacity {
		s.buffer = s.buffer[1:]
		s.pendingLag++
	}
	s.buffer = append(s.buffer, data)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Broadcaster holds the set of live subscribers and fans out events to
// each one, applying that subscriber's filter and overflow policy.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	nextID      uint64
	capacity    int
	maxLags     int
}

// New builds a Broadcaster with the given per-subscriber capacity and
// max-consecutive-lag disconnect threshold. Zero values fall back to the
// package defaults.
func New(capacity, maxLags int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxLags <= 0 {
		maxLags = DefaultMaxLags
	}
	return &Broadcaster{
		subscribers: make(map[uint64]*Subscriber),
		capacity:    capacity,
		maxLags:     maxLags,
	}
}

// Subscribe registers a new subscriber with the given filter (nil matches
// everything) and returns it along with an unsubscribe func.
func (b *Broadcaster) Subscribe(filter Filter) (*Subscriber, func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &Subscriber{
		id:       id,
		filter:   filter,
		capacity: b.capacity,
		maxLags:  b.maxLags,
		wake:     make(chan struct{}, 1),
	}
	sub.onTooLaggy = func(id uint64) { b.remove(id) }
	b.subscribers[id] = sub
	b.mu.Unlock()

	unsubscribe := func() { b.remove(id) }
	return sub, unsubscribe
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish delivers e to every subscriber whose filter matches it. A
// subscriber whose buffer is at capacity has its oldest message dropped;
// the drop is folded into a single Lagged(n) notice the subscriber receives
// the next time it reads, rather than one notice per dropped event.
func (b *Broadcaster) Publish(e event.Event) {
	data, err := json.Marshal(envelope{Kind: "event", Event: &e})
	if err != nil {
		log.Printf("broadcast: marshal event: %v", err)
		return
	}

	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil && !s.filter(e) {
			continue
		}
		s.offer(data)
	}
}

// SubscriberCount reports the number of currently registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
