package track

import "sync"

// sessionState is one session's cross-tracker correlation record. Phase is
// written only by SessionTracker; InProgress/Pending are set by TodoTracker
// and cleared by MarkEnded when SessionTracker ends the session. Multiple
// trackers read it (§5).
type sessionState struct {
	phase      SessionPhase
	inProgress int
	pending    int
}

// StateMap is the shared, read-write-protected session-state map described
// in §9: multiple readers, writes under one lock, used only for
// cross-tracker abandonment correlation.
type StateMap struct {
	mu     sync.RWMutex
	states map[string]*sessionState

	abandonMu sync.Mutex
	onAbandon func(sessionID string, inProgress, pending int)
}

// NewStateMap builds an empty correlation map.
func NewStateMap() *StateMap {
	return &StateMap{states: make(map[string]*sessionState)}
}

func (m *StateMap) entry(sessionID string) *sessionState {
	if s, ok := m.states[sessionID]; ok {
		return s
	}
	s := &sessionState{phase: PhaseActive}
	m.states[sessionID] = s
	return s
}

// OnAbandonment registers the callback TodoTracker uses to emit its final
// todo_progress event when a session ends with outstanding todos. Only one
// handler is supported; TodoTracker is the map's sole subscriber.
func (m *StateMap) OnAbandonment(handler func(sessionID string, inProgress, pending int)) {
	m.abandonMu.Lock()
	m.onAbandon = handler
	m.abandonMu.Unlock()
}

// UpdateTodoCounts records the latest in_progress/pending tally for a
// session, called by TodoTracker after each debounced parse.
func (m *StateMap) UpdateTodoCounts(sessionID string, inProgress, pending int) {
	m.mu.Lock()
	s := m.entry(sessionID)
	s.inProgress = inProgress
	s.pending = pending
	m.mu.Unlock()
}

// MarkEnded transitions a session to PhaseEnded. If outstanding todo counts
// are nonzero at the moment of transition, the registered abandonment
// handler (TodoTracker) is invoked exactly once with those counts.
func (m *StateMap) MarkEnded(sessionID string) {
	m.mu.Lock()
	s := m.entry(sessionID)
	alreadyEnded := s.phase == PhaseEnded
	s.phase = PhaseEnded
	inProgress, pending := s.inProgress, s.pending
	s.inProgress, s.pending = 0, 0
	m.mu.Unlock()

	if alreadyEnded || inProgress+pending == 0 {
		return
	}

	m.abandonMu.Lock()
	handler := m.onAbandon
	m.abandonMu.Unlock()
	if handler != nil {
		handler(sessionID, inProgress, pending)
	}
}

// Phase reports a session's current lifecycle phase, defaulting to active
// for sessions not yet seen.
func (m *StateMap) Phase(sessionID string) SessionPhase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.states[sessionID]; ok {
		return s.phase
	}
	return PhaseActive
}
