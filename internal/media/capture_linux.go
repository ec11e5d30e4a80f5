//go:build linux && cgo

package media

import (
	"fmt"
	"log"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// deviceSource captures real devices via pion/mediadevices (malgo for the
// microphone, X11 for screen capture).
type deviceSource struct {
	selector *mediadevices.CodecSelector
}

// NewCaptureSource builds the platform capture source.
func NewCaptureSource() (CaptureSource, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("media: vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("media: opus params: %w", err)
	}

	return &deviceSource{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (s *deviceSource) ConfigureEngine(me *webrtc.MediaEngine) error {
	s.selector.Populate(me)
	return nil
}

func (s *deviceSource) OpenMicrophone() (*Track, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: s.selector,
	})
	if err != nil {
		log.Printf("MEDIA: GetUserMedia(audio) failed: %v", err)
		return nil, classifyCaptureErr(err, false)
	}

	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, ErrDeviceUnavailable
	}
	return wrapDeviceTrack(KindAudio, tracks[0]), nil
}

func (s *deviceSource) OpenScreen() (*Track, error) {
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only — MJPEG screen nodes produce frames that
			// poison the VP8 encoder and break SDP negotiation.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
		},
		Codec: s.selector,
	})
	if err != nil {
		log.Printf("MEDIA: GetDisplayMedia failed: %v", err)
		return nil, classifyCaptureErr(err, true)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, ErrDeviceUnavailable
	}
	return wrapDeviceTrack(KindVideo, tracks[0]), nil
}

// wrapDeviceTrack adapts a mediadevices track, funnelling the device's
// own ended signal (unplugged camera, revoked capture) into the wrapper
// so share-stop teardown runs the same path as an explicit stop.
func wrapDeviceTrack(kind string, dt mediadevices.Track) *Track {
	t := NewTrack(kind, dt, func() { _ = dt.Close() })
	dt.OnEnded(func(err error) {
		if err != nil {
			log.Printf("MEDIA: %s track ended: %v", kind, err)
		}
		t.FireEnded()
	})
	return t
}
