package track

import (
	"testing"
	"time"

	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/parse"
)

func TestStatsTrackerEmitsFinalSummaryOnSessionEnd(t *testing.T) {
	emit, get := collectingEmit()
	st := NewStatsTracker(time.Hour, emit)

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	st.Observe("sess-1", parse.SessionRecord{Type: parse.RecordUser, Timestamp: start})
	st.Observe("sess-1", parse.SessionRecord{
		Type:      parse.RecordAssistant,
		Timestamp: start.Add(time.Minute),
		Model:     "claude-x",
		HasUsage:  true,
		Usage:     parse.TokenUsage{Input: 100, Output: 50},
	})
	st.Observe("sess-1", parse.SessionRecord{Type: parse.RecordToolUse, Timestamp: start.Add(2 * time.Minute)})
	st.Observe("sess-1", parse.SessionRecord{Type: parse.RecordSummary, Timestamp: start.Add(3 * time.Minute)})

	var gotTokens, gotMetrics, gotPattern, gotDist bool
	for _, p := range get() {
		switch v := p.(type) {
		case event.TokenUsagePayload:
			gotTokens = true
			if v.Model != "claude-x" || v.Summary.Input != 100 || v.Summary.Output != 50 {
				t.Fatalf("unexpected token usage: %+v", v)
			}
		case event.SessionMetricsPayload:
			gotMetrics = true
			if v.Messages != 2 || v.Tools != 1 || v.DurationMs != 3*60*1000 {
				t.Fatalf("unexpected session metrics: %+v", v)
			}
		case event.ActivityPatternPayload:
			gotPattern = true
			if v.HourCounts[9] != 4 {
				t.Fatalf("unexpected hour counts: %+v", v.HourCounts)
			}
		case event.ModelDistributionPayload:
			gotDist = true
			if v.Models["claude-x"] != 1 {
				t.Fatalf("unexpected model distribution: %+v", v.Models)
			}
		}
	}
	if !gotTokens || !gotMetrics || !gotPattern || !gotDist {
		t.Fatalf("expected all four summary payload kinds, got tokens=%v metrics=%v pattern=%v dist=%v",
			gotTokens, gotMetrics, gotPattern, gotDist)
	}
}

func TestStatsTrackerIgnoresRecordsAfterSessionEnd(t *testing.T) {
	emit, get := collectingEmit()
	st := NewStatsTracker(time.Hour, emit)

	now := time.Now()
	st.Observe("sess-1", parse.SessionRecord{Type: parse.RecordUser, Timestamp: now})
	st.Observe("sess-1", parse.SessionRecord{Type: parse.RecordSummary, Timestamp: now})
	countAfterEnd := len(get())

	st.Observe("sess-1", parse.SessionRecord{Type: parse.RecordUser, Timestamp: now})
	if len(get()) != countAfterEnd {
		t.Fatal("expected no further emissions for records observed after session end")
	}
}
