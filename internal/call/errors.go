package call

import "errors"

var (
	// ErrEnded is returned by operations on a call whose phase is terminal.
	ErrEnded = errors.New("call: ended")

	// ErrStarted is returned by Start on a call that is already running.
	ErrStarted = errors.New("call: already started")

	// ErrNegotiationFailed wraps SDP-level failures for a single session.
	// It is scoped to that session; the rest of the mesh is unaffected.
	ErrNegotiationFailed = errors.New("call: negotiation failed")
)

// shortID trims a peer identifier for log lines, the same tail libp2p
// peer IDs are usually recognized by.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
