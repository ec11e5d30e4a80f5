package call

// Phase is the lifecycle of one Call value. Ended is terminal: joining
// again means allocating a fresh Call, never reusing an old one.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Mode selects the teardown semantics of a call.
type Mode int

const (
	// ModeRoom is a multi-party room: there is no collective end, each
	// participant's departure tears down only that participant's session.
	ModeRoom Mode = iota

	// ModeDirect is a 1:1 call: hangup is signaled explicitly with a
	// call-end message and the whole call ends with the peer.
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "room"
}
