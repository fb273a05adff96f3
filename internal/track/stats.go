package track

import (
	"sync"
	"time"

	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/parse"
)

// DefaultStatsInterval is the default cadence for StatsTracker's rolling
// summary, independent of session end (§4.5).
const DefaultStatsInterval = 5 * time.Minute

type sessionStats struct {
	startedAt   time.Time
	lastAt      time.Time
	messages    int64
	tools       int64
	hourCounts  map[int]int64
	modelCounts map[string]int64
	tokens      map[string]event.TokenUsageSummary
	ended       bool
}

func newSessionStats() *sessionStats {
	return &sessionStats{
		hourCounts:  make(map[int]int64),
		modelCounts: make(map[string]int64),
		tokens:      make(map[string]event.TokenUsageSummary),
	}
}

// StatsTracker aggregates the other trackers' session jsonl observations
// into periodic summaries: token_usage, session_metrics, activity_pattern,
// and model_distribution (§4.5). It is fed via Observe, registered as
// SessionTracker's observer, rather than watching any file itself.
type StatsTracker struct {
	emit     Emit
	interval time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionStats

	stop chan struct{}
}

// NewStatsTracker builds a StatsTracker emitting a rolling summary every
// interval, in addition to a final summary on each session's end.
func NewStatsTracker(interval time.Duration, emit Emit) *StatsTracker {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	return &StatsTracker{
		emit:     emit,
		interval: interval,
		sessions: make(map[string]*sessionStats),
		stop:     make(chan struct{}),
	}
}

// Run emits a rolling summary for every still-active session every
// interval, until Stop is called.
func (t *StatsTracker) Run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.emitRolling()
		}
	}
}

// Stop cancels the rolling-summary loop.
func (t *StatsTracker) Stop() {
	close(t.stop)
}

// Observe is SessionTracker's per-record callback (see SetObserver): it
// accumulates message/tool/model/token counters and, on a session-ending
// summary record, emits that session's final metrics immediately.
func (t *StatsTracker) Observe(sessionID string, rec parse.SessionRecord) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	if !ok {
		s = newSessionStats()
		s.startedAt = ts
		t.sessions[sessionID] = s
	}
	if s.ended {
		t.mu.Unlock()
		return
	}
	s.lastAt = ts
	s.hourCounts[ts.Hour()]++

	switch rec.Type {
	case parse.RecordUser, parse.RecordAssistant:
		s.messages++
	case parse.RecordToolUse:
		s.tools++
	}

	if rec.Model != "" {
		s.modelCounts[rec.Model]++
		if rec.HasUsage {
			sum := s.tokens[rec.Model]
			sum.Input += rec.Usage.Input
			sum.Output += rec.Usage.Output
			sum.CacheRead += rec.Usage.CacheRead
			sum.CacheWrite += rec.Usage.CacheWrite
			s.tokens[rec.Model] = sum
		}
	}

	ended := rec.Type == parse.RecordSummary
	if ended {
		s.ended = true
	}
	snapshot := cloneStats(s)
	if ended {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()

	if ended {
		t.emitSummary(sessionID, snapshot)
	}
}

func (t *StatsTracker) emitRolling() {
	t.mu.Lock()
	snapshots := make(map[string]*sessionStats, len(t.sessions))
	for id, s := range t.sessions {
		snapshots[id] = cloneStats(s)
	}
	t.mu.Unlock()

	for id, snap := range snapshots {
		t.emitSummary(id, snap)
	}
}

func (t *StatsTracker) emitSummary(sessionID string, s *sessionStats) {
	for model, sum := range s.tokens {
		t.emit(event.TokenUsagePayload{SessionID: sessionID, Model: model, Summary: sum})
	}
	t.emit(event.SessionMetricsPayload{
		SessionID:  sessionID,
		Messages:   s.messages,
		Tools:      s.tools,
		DurationMs: s.lastAt.Sub(s.startedAt).Milliseconds(),
	})
	t.emit(event.ActivityPatternPayload{SessionID: sessionID, HourCounts: s.hourCounts})
	t.emit(event.ModelDistributionPayload{SessionID: sessionID, Models: s.modelCounts})
}

func cloneStats(s *sessionStats) *sessionStats {
	clone := newSessionStats()
	clone.startedAt = s.startedAt
	clone.lastAt = s.lastAt
	clone.messages = s.messages
	clone.tools = s.tools
	clone.ended = s.ended
	for k, v := range s.hourCounts {
		clone.hourCounts[k] = v
	}
	for k, v := range s.modelCounts {
		clone.modelCounts[k] = v
	}
	for k, v := range s.tokens {
		clone.tokens[k] = v
	}
	return clone
}
