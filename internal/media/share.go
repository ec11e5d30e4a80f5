package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// ShareSlot holds the one inbound screen-share rendered at a time. A new
// share replaces the previous one; when the sharer's track ends the slot
// clears without any new negotiation from our side.
type ShareSlot struct {
	mu       sync.Mutex
	from     string
	track    *webrtc.TrackRemote
	onChange []func(from string, track *webrtc.TrackRemote)
}

func NewShareSlot() *ShareSlot { return &ShareSlot{} }

// OnChange registers fn for slot updates. A nil track means cleared.
func (s *ShareSlot) OnChange(fn func(from string, track *webrtc.TrackRemote)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Set installs an inbound share track from the given participant.
func (s *ShareSlot) Set(from string, track *webrtc.TrackRemote) {
	s.mu.Lock()
	s.from = from
	s.track = track
	fns := append([]func(string, *webrtc.TrackRemote){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(from, track)
	}
}

// ClearIf empties the slot if it still holds the given participant's
// share. Guards against a stale clear racing a newer share.
func (s *ShareSlot) ClearIf(from string) {
	s.mu.Lock()
	if s.from != from {
		s.mu.Unlock()
		return
	}
	s.from = ""
	s.track = nil
	fns := append([]func(string, *webrtc.TrackRemote){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn("", nil)
	}
}

// Current returns the active share, or ("", nil) when empty.
func (s *ShareSlot) Current() (string, *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.from, s.track
}
