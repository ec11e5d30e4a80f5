package media

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// BuildAPI assembles the webrtc API every peer session is created from:
// the source's codecs, the default interceptor set, and generous ICE
// timeouts. The default disconnectedTimeout of 5 s is far too short for
// relayed paths that can stall briefly during re-keying; 30 s lets ICE
// recover without tearing the session down.
func BuildAPI(source CaptureSource) (*webrtc.API, error) {
	me := &webrtc.MediaEngine{}
	if err := source.ConfigureEngine(me); err != nil {
		return nil, fmt.Errorf("media: configure engine: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("media: register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}
