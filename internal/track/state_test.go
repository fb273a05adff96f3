package track

import "testing"

func TestMarkEndedTriggersAbandonmentWhenOutstanding(t *testing.T) {
	m := NewStateMap()
	var gotID string
	var gotInProgress, gotPending int
	m.OnAbandonment(func(sessionID string, inProgress, pending int) {
		gotID, gotInProgress, gotPending = sessionID, inProgress, pending
	})

	m.UpdateTodoCounts("sess-1", 2, 3)
	m.MarkEnded("sess-1")

	if gotID != "sess-1" || gotInProgress != 2 || gotPending != 3 {
		t.Fatalf("expected abandonment callback with (sess-1, 2, 3), got (%s, %d, %d)", gotID, gotInProgress, gotPending)
	}
	if m.Phase("sess-1") != PhaseEnded {
		t.Fatal("expected session phase to be ended")
	}
}

func TestMarkEndedSkipsAbandonmentWhenClean(t *testing.T) {
	m := NewStateMap()
	called := false
	m.OnAbandonment(func(sessionID string, inProgress, pending int) {
		called = true
	})

	m.UpdateTodoCounts("sess-1", 0, 0)
	m.MarkEnded("sess-1")

	if called {
		t.Fatal("expected no abandonment callback when todos are clean")
	}
}

func TestMarkEndedIsIdempotent(t *testing.T) {
	m := NewStateMap()
	calls := 0
	m.OnAbandonment(func(sessionID string, inProgress, pending int) {
		calls++
	})

	m.UpdateTodoCounts("sess-1", 1, 0)
	m.MarkEnded("sess-1")
	m.MarkEnded("sess-1") // second call must not re-fire

	if calls != 1 {
		t.Fatalf("expected exactly one abandonment callback, got %d", calls)
	}
}

func TestPhaseDefaultsToActive(t *testing.T) {
	m := NewStateMap()
	if m.Phase("unseen") != PhaseActive {
		t.Fatal("expected unseen session to default to active")
	}
}
