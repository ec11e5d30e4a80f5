package state

import (
	"testing"
	"time"
)

func TestApplyJoinUpdateHeartbeat(t *testing.T) {
	r := NewRoster()
	now := time.Now()

	evt, changed := r.Apply(Participant{ID: "p1", Label: "alice"}, now)
	if !changed || evt.Type != EventJoined {
		t.Fatalf("first apply = (%v, %v), want joined", evt.Type, changed)
	}

	// Heartbeat with unchanged attributes refreshes LastSeen silently.
	_, changed = r.Apply(Participant{ID: "p1", Label: "alice"}, now.Add(time.Second))
	if changed {
		t.Fatalf("heartbeat produced a delta")
	}
	p, ok := r.Get("p1")
	if !ok || !p.LastSeen.Equal(now.Add(time.Second)) {
		t.Fatalf("heartbeat did not refresh LastSeen")
	}

	// Attribute change is an update, not a rejoin.
	evt, changed = r.Apply(Participant{ID: "p1", Label: "alice", Muted: true}, now.Add(2*time.Second))
	if !changed || evt.Type != EventUpdated {
		t.Fatalf("mute toggle = (%v, %v), want updated", evt.Type, changed)
	}
	if p, _ := r.Get("p1"); !p.Muted {
		t.Fatalf("updated record not stored")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d after update, want 1", r.Len())
	}
}

func TestLastAssertedWins(t *testing.T) {
	r := NewRoster()
	now := time.Now()

	r.Apply(Participant{ID: "p1", Label: "desktop"}, now)
	r.Apply(Participant{ID: "p1", Label: "laptop"}, now.Add(time.Second))

	p, _ := r.Get("p1")
	if p.Label != "laptop" {
		t.Fatalf("label = %q, want last-asserted %q", p.Label, "laptop")
	}
	if r.Len() != 1 {
		t.Fatalf("duplicate join merged into %d records", r.Len())
	}
}

func TestApplyLeave(t *testing.T) {
	r := NewRoster()
	r.Apply(Participant{ID: "p1"}, time.Now())

	if !r.ApplyLeave("p1") {
		t.Fatalf("leave for known participant returned false")
	}
	if r.ApplyLeave("p1") {
		t.Fatalf("second leave returned true")
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d after leave, want 0", r.Len())
	}
}

func TestPruneExpiresSilentMembers(t *testing.T) {
	r := NewRoster()
	now := time.Now()
	r.Apply(Participant{ID: "fresh"}, now)
	r.Apply(Participant{ID: "stale"}, now.Add(-time.Minute))

	gone := r.Prune(now.Add(-30 * time.Second))
	if len(gone) != 1 || gone[0].ID != "stale" {
		t.Fatalf("Prune removed %v, want only stale", gone)
	}
	if _, ok := r.Get("fresh"); !ok {
		t.Fatalf("fresh member pruned")
	}
}

func TestSubscriberSeesDeltas(t *testing.T) {
	r := NewRoster()
	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	now := time.Now()
	r.Apply(Participant{ID: "p1", Label: "alice"}, now)
	r.Apply(Participant{ID: "p1", Label: "alice"}, now.Add(time.Second)) // heartbeat, no event
	r.Apply(Participant{ID: "p1", Label: "alice", Muted: true}, now.Add(2*time.Second))
	r.ApplyLeave("p1")

	want := []EventType{EventJoined, EventUpdated, EventLeft}
	for i, wt := range want {
		select {
		case evt := <-ch:
			if evt.Type != wt {
				t.Fatalf("event %d = %v, want %v", i, evt.Type, wt)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d (%v)", i, wt)
		}
	}
	select {
	case evt := <-ch:
		t.Fatalf("unexpected extra event %v", evt.Type)
	default:
	}
}
