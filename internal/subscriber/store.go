// Package subscriber implements the Hub's session store: short-lived,
// bounded, LRU-evicted tokens handed to subscribers after identity
// verification (§4.11).
package subscriber

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one subscriber's issued token record.
type Session struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
	LastSeen  time.Time
}

// Store is a bounded map of subscriber tokens, LRU-evicted by least
// recently seen when it reaches capacity, with a background sweep for
// TTL expiry. Tokens are never logged.
type Store struct {
	maxSize int

	mu      sync.Mutex
	entries map[string]*list.Element // token -> node in lru
	lru     *list.List               // front = most recently seen
}

type node struct {
	session *Session
}

// New builds a Store bounded at maxSize entries.
func New(maxSize int) *Store {
	return &Store{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Issue mints a fresh token bound to subject, valid for ttl, inserting it
// into the store and evicting the least-recently-seen entry if the store is
// at capacity.
func (s *Store) Issue(subject string, ttl time.Duration) *Session {
	token := uuid.NewString()
	now := time.Now()
	sess := &Session{Token: token, Subject: subject, ExpiresAt: now.Add(ttl), LastSeen: now}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldestLocked()
	}

	elem := s.lru.PushFront(&node{session: sess})
	s.entries[token] = elem
	return sess
}

// Seed installs a literal, caller-chosen token (e.g. the Hub's configured
// static fallback token) rather than minting a random one, so it can be
// presented verbatim by any client configured with it. ttl <= 0 means the
// token effectively never expires.
func (s *Store) Seed(token, subject string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 100 * 365 * 24 * time.Hour
	}
	now := time.Now()
	sess := &Session{Token: token, Subject: subject, ExpiresAt: now.Add(ttl), LastSeen: now}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[token]; ok {
		elem.Value.(*node).session = sess
		s.lru.MoveToFront(elem)
		return
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldestLocked()
	}
	elem := s.lru.PushFront(&node{session: sess})
	s.entries[token] = elem
}

func (s *Store) evictOldestLocked() {
	oldest := s.lru.Back()
	if oldest == nil {
		return
	}
	s.lru.Remove(oldest)
	delete(s.entries, oldest.Value.(*node).session.Token)
}

// Validate looks up a token, returning the session and whether it was
// found, unexpired, and moved to the front of the LRU (touching LastSeen).
func (s *Store) Validate(token string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[token]
	if !ok {
		return nil, false
	}
	sess := elem.Value.(*node).session
	if time.Now().After(sess.ExpiresAt) {
		s.lru.Remove(elem)
		delete(s.entries, token)
		return nil, false
	}
	sess.LastSeen = time.Now()
	s.lru.MoveToFront(elem)
	return sess, true
}

// Remove deletes a token outright (e.g. on explicit logout).
func (s *Store) Remove(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[token]; ok {
		s.lru.Remove(elem)
		delete(s.entries, token)
	}
}

// SweepExpired removes every entry whose TTL has elapsed. Intended to run
// on a periodic background tick.
func (s *Store) SweepExpired() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.lru.Back(); elem != nil; {
		prev := elem.Prev()
		sess := elem.Value.(*node).session
		if now.After(sess.ExpiresAt) {
			s.lru.Remove(elem)
			delete(s.entries, sess.Token)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len reports the current number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
