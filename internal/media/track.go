package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Kind of a local track.
const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Track is one outgoing media track: a single physical capture fanned out
// by reference to every open peer session. Muting clears the enabled flag
// and nothing else — the track stays attached to all senders so no
// renegotiation happens. Stop releases the capture once, for everyone.
type Track struct {
	kind    string
	local   webrtc.TrackLocal
	enabled atomic.Bool

	stopOnce sync.Once
	stopFn   func()

	endedMu   sync.Mutex
	endedFns  []func()
	endedOnce sync.Once
}

// NewTrack wraps a webrtc local track. stopFn releases the underlying
// capture; it may be nil.
func NewTrack(kind string, local webrtc.TrackLocal, stopFn func()) *Track {
	t := &Track{kind: kind, local: local, stopFn: stopFn}
	t.enabled.Store(true)
	return t
}

// Kind returns KindAudio or KindVideo.
func (t *Track) Kind() string { return t.kind }

// Local returns the track to hand to PeerConnection.AddTrack.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

// Enabled reports whether the track is producing media.
func (t *Track) Enabled() bool { return t.enabled.Load() }

// SetEnabled flips the enabled flag. Sample-pumping sources consult it
// before each write, so disabling sends silence without detaching.
func (t *Track) SetEnabled(on bool) { t.enabled.Store(on) }

// OnEnded registers fn to run once when the capture ends, whether by Stop
// or externally (the OS-level "stop sharing" affordance).
func (t *Track) OnEnded(fn func()) {
	t.endedMu.Lock()
	t.endedFns = append(t.endedFns, fn)
	t.endedMu.Unlock()
}

// FireEnded runs the ended handlers exactly once. Capture sources call
// this when the device reports the track gone.
func (t *Track) FireEnded() {
	t.endedOnce.Do(func() {
		t.endedMu.Lock()
		fns := make([]func(), len(t.endedFns))
		copy(fns, t.endedFns)
		t.endedMu.Unlock()
		for _, fn := range fns {
			fn()
		}
	})
}

// Stop releases the capture. Idempotent; fires the ended handlers.
func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		if t.stopFn != nil {
			t.stopFn()
		}
	})
	t.FireEnded()
}
