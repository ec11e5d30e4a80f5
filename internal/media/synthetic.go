package media

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// SyntheticSource produces placeholder tracks without touching any
// hardware. It backs headless runs and tests; the pump goroutines
// honour the Track enabled flag so mute behaves the same as with
// real capture.
type SyntheticSource struct {
	interval time.Duration
}

// NewSyntheticSource returns a source that emits a frame every 20ms.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{interval: 20 * time.Millisecond}
}

func (s *SyntheticSource) ConfigureEngine(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (s *SyntheticSource) OpenMicrophone() (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "voxmesh-synth",
	)
	if err != nil {
		return nil, err
	}
	return s.pump(KindAudio, local, opusSilence()), nil
}

func (s *SyntheticSource) OpenScreen() (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "voxmesh-synth",
	)
	if err != nil {
		return nil, err
	}
	return s.pump(KindVideo, local, make([]byte, 64)), nil
}

// pump writes the payload on a ticker until the track is stopped.
// A disabled track keeps the clock running but writes nothing, which
// is how mute stays renegotiation-free.
func (s *SyntheticSource) pump(kind string, local *webrtc.TrackLocalStaticSample, payload []byte) *Track {
	done := make(chan struct{})
	tr := NewTrack(kind, local, func() { close(done) })
	go func() {
		tick := time.NewTicker(s.interval)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				if !tr.Enabled() {
					continue
				}
				_ = local.WriteSample(media.Sample{Data: payload, Duration: s.interval})
			}
		}
	}()
	return tr
}

// opusSilence is a minimal silent Opus frame (TOC byte plus empty
// frame data) good enough for loopback tests.
func opusSilence() []byte {
	return []byte{0xf8, 0xff, 0xfe}
}
