//go:build !linux || !cgo

package media

import (
	"github.com/pion/webrtc/v4"
)

// Hardware capture via pion/mediadevices needs platform drivers
// (malgo/X11 on Linux). Elsewhere the platform source opens nothing;
// use NewSyntheticSource for headless runs and tests.
type noDeviceSource struct{}

// NewCaptureSource builds the platform capture source.
func NewCaptureSource() (CaptureSource, error) {
	return noDeviceSource{}, nil
}

func (noDeviceSource) ConfigureEngine(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (noDeviceSource) OpenMicrophone() (*Track, error) {
	return nil, ErrDeviceUnavailable
}

func (noDeviceSource) OpenScreen() (*Track, error) {
	return nil, ErrDeviceUnavailable
}
