// Package media owns the local user's outgoing capability set — the
// microphone and screen-share tracks — and the inbound playback sinks.
// One physical track is shared by reference across every peer session;
// enable/disable and stop are applied once and observed by all.
package media

import (
	"errors"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Acquisition failure taxonomy. PermissionDenied and DeviceUnavailable
// are fatal to call start (microphone) or to the one feature being
// enabled (screen-share); they never affect already-open sessions.
var (
	ErrPermissionDenied  = errors.New("media: permission denied")
	ErrDeviceUnavailable = errors.New("media: device unavailable")
	ErrUserCancelled     = errors.New("media: cancelled by user")
)

// CaptureSource is the seam between the controller and an actual capture
// backend (pion/mediadevices on Linux, a synthetic generator elsewhere
// and in tests).
type CaptureSource interface {
	// ConfigureEngine registers the source's codecs on a media engine so
	// peer connections negotiate what the source produces.
	ConfigureEngine(me *webrtc.MediaEngine) error

	OpenMicrophone() (*Track, error)
	OpenScreen() (*Track, error)
}

// Controller is the local media controller: acquires and releases
// capture tracks and exposes the mute/deafen/share toggles.
type Controller struct {
	source CaptureSource
	sinks  *SinkSet
	share  *ShareSlot

	mu       sync.Mutex
	mic      *Track
	screen   *Track
	muted    bool
	deafened bool
}

func NewController(source CaptureSource, sinks *SinkSet) *Controller {
	if sinks == nil {
		sinks = NewSinkSet(nil)
	}
	return &Controller{source: source, sinks: sinks, share: NewShareSlot()}
}

// Sinks returns the playback sink registry for inbound audio routing.
func (c *Controller) Sinks() *SinkSet { return c.sinks }

// Share returns the inbound screen-share slot.
func (c *Controller) Share() *ShareSlot { return c.share }

// AcquireMicrophone opens the microphone track, or returns the existing
// one. Fails with ErrPermissionDenied or ErrDeviceUnavailable.
func (c *Controller) AcquireMicrophone() (*Track, error) {
	c.mu.Lock()
	if c.mic != nil {
		t := c.mic
		c.mu.Unlock()
		return t, nil
	}
	muted := c.muted
	c.mu.Unlock()

	t, err := c.source.OpenMicrophone()
	if err != nil {
		return nil, err
	}
	t.SetEnabled(!muted)

	c.mu.Lock()
	c.mic = t
	c.mu.Unlock()
	log.Printf("MEDIA: microphone acquired")
	return t, nil
}

// AcquireScreenShare opens the screen capture track. Fails with
// ErrPermissionDenied or ErrUserCancelled.
func (c *Controller) AcquireScreenShare() (*Track, error) {
	c.mu.Lock()
	if c.screen != nil {
		t := c.screen
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	t, err := c.source.OpenScreen()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.screen = t
	c.mu.Unlock()
	log.Printf("MEDIA: screen share acquired")
	return t, nil
}

// Microphone returns the current mic track, if acquired.
func (c *Controller) Microphone() *Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mic
}

// Screen returns the current screen track, if acquired.
func (c *Controller) Screen() *Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// SetMuted flips the microphone's enabled flag. The track stays attached
// to every sender — mute never renegotiates.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	mic := c.mic
	c.mu.Unlock()
	if mic != nil {
		mic.SetEnabled(!muted)
	}
}

// Muted reports the local mute state.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// SetDeafened silences every inbound playback sink. Purely local: it
// changes nothing about what is sent to remote peers and is not
// broadcast.
func (c *Controller) SetDeafened(deafened bool) {
	c.mu.Lock()
	c.deafened = deafened
	c.mu.Unlock()
	c.sinks.SetDeafened(deafened)
}

// Deafened reports the local deafen state.
func (c *Controller) Deafened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deafened
}

// ReleaseMicrophone stops and drops the mic track.
func (c *Controller) ReleaseMicrophone() {
	c.mu.Lock()
	t := c.mic
	c.mic = nil
	c.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// ReleaseScreen stops and drops the screen track. Safe to call from the
// track-ended path: Stop is idempotent.
func (c *Controller) ReleaseScreen() {
	c.mu.Lock()
	t := c.screen
	c.screen = nil
	c.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// Close releases everything.
func (c *Controller) Close() {
	c.ReleaseScreen()
	c.ReleaseMicrophone()
	c.sinks.Close()
}
