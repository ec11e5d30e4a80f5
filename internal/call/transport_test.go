package call

import (
	"sync"
	"testing"
	"time"

	"github.com/voxmesh/voxmesh/internal/media"
	"github.com/voxmesh/voxmesh/internal/signal"
	"github.com/voxmesh/voxmesh/internal/state"
)

// fakeTransport is an in-memory stand-in for a signaling room. deliver
// pushes envelopes through the registered handlers with the same
// filtering the real read loop applies.
type fakeTransport struct {
	self string

	mu        sync.Mutex
	published []signal.Envelope
	msgFns    []func(signal.Envelope)
	presFns   []func(signal.Envelope)
	tracked   []state.Participant
	left      bool
}

func newFakeTransport(self string) *fakeTransport {
	return &fakeTransport{self: self}
}

func (f *fakeTransport) Self() string { return f.self }

func (f *fakeTransport) Publish(env signal.Envelope) error {
	f.mu.Lock()
	f.published = append(f.published, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) OnMessage(fn func(signal.Envelope)) {
	f.mu.Lock()
	f.msgFns = append(f.msgFns, fn)
	f.mu.Unlock()
}

func (f *fakeTransport) OnPresence(fn func(signal.Envelope)) {
	f.mu.Lock()
	f.presFns = append(f.presFns, fn)
	f.mu.Unlock()
}

func (f *fakeTransport) Track(p state.Participant) error {
	f.mu.Lock()
	f.tracked = append(f.tracked, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Leave() error {
	f.mu.Lock()
	f.left = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) deliver(env signal.Envelope) {
	if env.From == f.self {
		return
	}
	if env.To != "" && env.To != f.self {
		return
	}
	f.mu.Lock()
	var fns []func(signal.Envelope)
	if env.IsPresence() {
		fns = append(fns, f.presFns...)
	} else {
		fns = append(fns, f.msgFns...)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
}

func (f *fakeTransport) countKind(k signal.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.published {
		if env.Kind == k {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastOfKind(k signal.Kind) (signal.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].Kind == k {
			return f.published[i], true
		}
	}
	return signal.Envelope{}, false
}

func (f *fakeTransport) wasLeft() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.left
}

func (f *fakeTransport) trackedMuted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tracked) == 0 {
		return false
	}
	return f.tracked[len(f.tracked)-1].Muted
}

// newTestCall builds a call over a fake transport with synthetic media.
func newTestCall(t *testing.T, mode Mode, selfID string) (*Call, *fakeTransport) {
	t.Helper()
	src := media.NewSyntheticSource()
	api, err := media.BuildAPI(src)
	if err != nil {
		t.Fatalf("BuildAPI: %v", err)
	}
	ft := newFakeTransport(selfID)
	c := New(ft, Options{
		Mode:              mode,
		Self:              state.Participant{Label: "self"},
		Media:             media.NewController(src, nil),
		API:               api,
		HeartbeatInterval: time.Hour,
	})
	t.Cleanup(c.Hangup)
	return c, ft
}

// settle waits until every event queued so far has been dispatched.
func settle(t *testing.T, c *Call) {
	t.Helper()
	done := make(chan struct{})
	c.post(func() { close(done) })
	select {
	case <-done:
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatch loop stalled")
	}
}

func presenceEnv(t *testing.T, from, label string, muted bool) signal.Envelope {
	t.Helper()
	env, err := signal.NewEnvelope(signal.KindPresence, from, "", signal.PresencePayload{
		Participant: state.Participant{ID: from, Label: label, Muted: muted},
	})
	if err != nil {
		t.Fatalf("presence envelope: %v", err)
	}
	return env
}

func leaveEnv(t *testing.T, from string) signal.Envelope {
	t.Helper()
	env, err := signal.NewEnvelope(signal.KindLeave, from, "", nil)
	if err != nil {
		t.Fatalf("leave envelope: %v", err)
	}
	return env
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}
