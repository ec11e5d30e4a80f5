// Package state tracks who is in a call room right now. Membership is
// derived from periodically re-asserted presence records: a record seen
// for a new identifier is a join, a record past its TTL (or an explicit
// leave) is a leave, and a re-assertion with changed attributes updates
// the member in place without touching its sessions.
package state

import (
	"sync"
	"time"
)

// Participant is one remote identity visible in a call. The local user is
// never stored in its own roster.
type Participant struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	AvatarRef string `json:"avatar,omitempty"`
	Muted     bool   `json:"muted"`

	// LastSeen is bookkeeping for TTL pruning, not part of the wire state.
	LastSeen time.Time `json:"-"`
}

// attrsEqual reports whether the broadcast attributes match (LastSeen is
// ignored — a heartbeat with unchanged attributes is not an update).
func attrsEqual(a, b Participant) bool {
	return a.Label == b.Label && a.AvatarRef == b.AvatarRef && a.Muted == b.Muted
}

type EventType string

const (
	EventJoined  EventType = "joined"
	EventUpdated EventType = "updated"
	EventLeft    EventType = "left"
)

// Event is a membership delta delivered to roster subscribers.
type Event struct {
	Type        EventType
	Participant Participant // for EventLeft only the ID is meaningful
}

// Roster is the authoritative set of present participants for one room.
type Roster struct {
	mu        sync.Mutex
	members   map[string]Participant
	listeners []chan Event
}

func NewRoster() *Roster {
	return &Roster{members: make(map[string]Participant)}
}

// Apply records a presence assertion. Last-asserted state for an
// identifier wins — duplicate joins (two clients, same identity) are not
// merged. Returns the delta it produced, if any.
func (r *Roster) Apply(p Participant, now time.Time) (Event, bool) {
	p.LastSeen = now

	r.mu.Lock()
	prev, known := r.members[p.ID]
	r.members[p.ID] = p
	r.mu.Unlock()

	switch {
	case !known:
		evt := Event{Type: EventJoined, Participant: p}
		r.notify(evt)
		return evt, true
	case !attrsEqual(prev, p):
		evt := Event{Type: EventUpdated, Participant: p}
		r.notify(evt)
		return evt, true
	default:
		return Event{}, false
	}
}

// ApplyLeave removes a participant. No-op for unknown identifiers.
func (r *Roster) ApplyLeave(id string) bool {
	r.mu.Lock()
	p, ok := r.members[id]
	if ok {
		delete(r.members, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.notify(Event{Type: EventLeft, Participant: p})
	return true
}

// Prune removes members whose last assertion is older than cutoff,
// emitting a leave for each. Presence is re-asserted on a heartbeat, so a
// silent member is gone, not merely quiet.
func (r *Roster) Prune(cutoff time.Time) []Participant {
	r.mu.Lock()
	var stale []Participant
	for id, p := range r.members {
		if p.LastSeen.Before(cutoff) {
			stale = append(stale, p)
			delete(r.members, id)
		}
	}
	r.mu.Unlock()

	for _, p := range stale {
		r.notify(Event{Type: EventLeft, Participant: p})
	}
	return stale
}

// Get returns the current record for an identifier.
func (r *Roster) Get(id string) (Participant, bool) {
	r.mu.Lock()
	p, ok := r.members[id]
	r.mu.Unlock()
	return p, ok
}

// Snapshot returns a copy of the current membership.
func (r *Roster) Snapshot() map[string]Participant {
	r.mu.Lock()
	out := make(map[string]Participant, len(r.members))
	for id, p := range r.members {
		out[id] = p
	}
	r.mu.Unlock()
	return out
}

// IDs returns the current member identifiers.
func (r *Roster) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	return ids
}

func (r *Roster) Len() int {
	r.mu.Lock()
	n := len(r.members)
	r.mu.Unlock()
	return n
}

// Subscribe returns a channel receiving membership deltas.
func (r *Roster) Subscribe() chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Event, 16)
	r.listeners = append(r.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a listener channel.
func (r *Roster) Unsubscribe(ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.listeners {
		if l == ch {
			close(l)
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *Roster) notify(evt Event) {
	r.mu.Lock()
	listeners := make([]chan Event, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- evt:
		default:
		}
	}
}
