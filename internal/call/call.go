package call

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/voxmesh/voxmesh/internal/media"
	"github.com/voxmesh/voxmesh/internal/signal"
	"github.com/voxmesh/voxmesh/internal/state"
)

// Transport is the slice of a signaling room a call depends on.
// *signal.Room satisfies it; tests substitute an in-memory bus.
type Transport interface {
	Self() string
	Publish(signal.Envelope) error
	OnMessage(fn func(signal.Envelope))
	OnPresence(fn func(signal.Envelope))
	Track(p state.Participant) error
	Leave() error
}

// Options configure one call.
type Options struct {
	Mode  Mode
	Self  state.Participant
	Media *media.Controller
	API   *webrtc.API

	STUNServers []string

	// HeartbeatInterval is the presence re-assert cadence; PresenceTTL is
	// how long a silent member survives before being pruned. TTL must
	// comfortably exceed the heartbeat.
	HeartbeatInterval time.Duration
	PresenceTTL       time.Duration
}

// Call is one joined voice/video room (or 1:1 call). All signaling and
// presence handling runs on a single dispatch goroutine, one event at a
// time; blocking work like device acquisition stays off that loop and
// posts its completion back as an event.
type Call struct {
	mode   Mode
	room   Transport
	media  *media.Controller
	roster *state.Roster
	mgr    *Manager

	heartbeat time.Duration
	ttl       time.Duration

	phase       atomic.Int32
	connectedAt atomic.Int64

	selfMu sync.Mutex
	self   state.Participant

	phaseMu  sync.Mutex
	phaseFns []func(Phase)

	events  chan func()
	done    chan struct{}
	endOnce sync.Once
}

// New builds a call over a joined room. Nothing is announced or
// acquired until Start.
func New(room Transport, opt Options) *Call {
	hb := opt.HeartbeatInterval
	if hb <= 0 {
		hb = 5 * time.Second
	}
	ttl := opt.PresenceTTL
	if ttl <= 0 {
		ttl = 4 * hb
	}

	c := &Call{
		mode:      opt.Mode,
		room:      room,
		media:     opt.Media,
		roster:    state.NewRoster(),
		heartbeat: hb,
		ttl:       ttl,
		self:      opt.Self,
		events:    make(chan func(), 256),
		done:      make(chan struct{}),
	}
	c.self.ID = room.Self()

	cfg := webrtc.Configuration{}
	for _, u := range opt.STUNServers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{URLs: []string{u}})
	}
	c.mgr = NewManager(room.Self(), opt.API, cfg, room.Publish, c.post, Hooks{
		RemoteApplied: func(string) { c.markConnected() },
		SessionFailed: c.onSessionFailed,
		RemoteTrack:   c.onRemoteTrack,
	})
	return c
}

// Start acquires the microphone, announces presence, and begins
// dispatching. The phase moves to Connecting immediately; Connected
// follows the first successfully applied remote description.
func (c *Call) Start() error {
	if !c.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseConnecting)) {
		if c.Phase() == PhaseEnded {
			return ErrEnded
		}
		return ErrStarted
	}
	c.notifyPhase(PhaseConnecting)

	mic, err := c.media.AcquireMicrophone()
	if err != nil {
		c.end("media failure", false)
		return fmt.Errorf("call: start: %w", err)
	}
	c.mgr.ApplyTrackChange(media.KindAudio, mic)

	c.room.OnPresence(func(env signal.Envelope) {
		c.post(func() { c.handlePresence(env) })
	})
	c.room.OnMessage(func(env signal.Envelope) {
		c.post(func() { c.handleSignal(env) })
	})

	if err := c.room.Track(c.Self()); err != nil {
		log.Printf("CALL: announce presence: %v", err)
	}
	go c.loop()
	log.Printf("CALL: started (%s mode)", c.mode)
	return nil
}

// post queues fn onto the dispatch loop. Events posted after the call
// ends are dropped.
func (c *Call) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

func (c *Call) loop() {
	hb := time.NewTicker(c.heartbeat)
	defer hb.Stop()
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.events:
			fn()
		case <-hb.C:
			if err := c.room.Track(c.Self()); err != nil {
				log.Printf("CALL: presence heartbeat: %v", err)
			}
			for _, p := range c.roster.Prune(time.Now().Add(-c.ttl)) {
				log.Printf("CALL [%s]: presence expired", shortID(p.ID))
				c.dropPeer(p.ID)
			}
			if c.mode == ModeDirect && c.Phase() == PhaseConnected && c.roster.Len() == 0 {
				c.end("peer lost", false)
			}
		}
	}
}

// handlePresence runs on the dispatch loop.
func (c *Call) handlePresence(env signal.Envelope) {
	if c.ended() {
		return
	}
	switch env.Kind {
	case signal.KindPresence:
		var p signal.PresencePayload
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("CALL: %v", err)
			return
		}
		part := p.Participant
		// Identity comes from the envelope, never the payload, and the
		// local identity never enters its own roster.
		part.ID = env.From
		if part.ID == c.room.Self() {
			return
		}
		evt, changed := c.roster.Apply(part, time.Now())
		if !changed {
			return
		}
		if evt.Type == state.EventJoined {
			log.Printf("CALL [%s]: joined (%s)", shortID(part.ID), part.Label)
			if err := c.mgr.EnsureSession(part.ID); err != nil {
				log.Printf("CALL [%s]: offer failed: %v", shortID(part.ID), err)
			}
		}
		// EventUpdated replaces the record in place; sessions untouched.
	case signal.KindLeave:
		if !c.roster.ApplyLeave(env.From) {
			return
		}
		log.Printf("CALL [%s]: left", shortID(env.From))
		c.dropPeer(env.From)
		if c.mode == ModeDirect {
			c.end("peer left", false)
		}
	}
}

// handleSignal runs on the dispatch loop. Chat and game-state ride the
// same topic but belong to their own manager; they are not handled here.
func (c *Call) handleSignal(env signal.Envelope) {
	if c.ended() {
		return
	}
	switch env.Kind {
	case signal.KindOffer:
		var p signal.OfferPayload
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("CALL: %v", err)
			return
		}
		if err := c.mgr.HandleOffer(env.From, p); err != nil {
			log.Printf("CALL [%s]: offer: %v", shortID(env.From), err)
		}
	case signal.KindAnswer:
		var p signal.AnswerPayload
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("CALL: %v", err)
			return
		}
		if err := c.mgr.HandleAnswer(env.From, p); err != nil {
			log.Printf("CALL [%s]: answer: %v", shortID(env.From), err)
		}
	case signal.KindCandidate:
		var p signal.CandidatePayload
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("CALL: %v", err)
			return
		}
		if err := c.mgr.HandleCandidate(env.From, p.Candidate); err != nil {
			log.Printf("CALL [%s]: candidate: %v", shortID(env.From), err)
		}
	case signal.KindCallEnd:
		if c.mode != ModeDirect {
			return
		}
		var p signal.CallEndPayload
		_ = env.DecodePayload(&p)
		log.Printf("CALL [%s]: remote hung up (%s)", shortID(env.From), p.Reason)
		c.end("remote hangup", false)
	}
}

// dropPeer tears down everything tied to one participant: the session,
// the playback sink, and the share slot if it was theirs.
func (c *Call) dropPeer(id string) {
	c.mgr.CloseSession(id)
	c.media.Sinks().Remove(id)
	c.media.Share().ClearIf(id)
}

func (c *Call) markConnected() {
	if c.phase.CompareAndSwap(int32(PhaseConnecting), int32(PhaseConnected)) {
		c.connectedAt.Store(time.Now().UnixMilli())
		log.Printf("CALL: connected")
		c.notifyPhase(PhaseConnected)
	}
}

func (c *Call) onSessionFailed(id string) {
	// Room mode: the member stays in the roster and a later join
	// observation may retry. Direct mode: the call is over.
	if c.mode == ModeDirect {
		c.end("transport failed", true)
	}
}

// onRemoteTrack runs on a pion goroutine. Inbound audio goes to that
// participant's playback sink; inbound video fills the share slot.
func (c *Call) onRemoteTrack(id string, track *webrtc.TrackRemote) {
	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		sink := c.media.Sinks().Bind(id)
		go media.PumpAudio(track, sink)
	case webrtc.RTPCodecTypeVideo:
		log.Printf("CALL [%s]: inbound share", shortID(id))
		c.media.Share().Set(id, track)
		go c.drainShare(id, track)
	}
}

// drainShare consumes the inbound share until it ends, then clears the
// slot. No counter-negotiation happens on our side; the sharer's
// remove-track offer already did the signaling.
func (c *Call) drainShare(id string, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			break
		}
	}
	c.media.Share().ClearIf(id)
}

// SetMuted flips the microphone and re-asserts presence so remote
// rosters show the indicator. The track stays attached to every sender;
// no renegotiation happens for any number of toggles.
func (c *Call) SetMuted(muted bool) {
	c.media.SetMuted(muted)
	c.selfMu.Lock()
	c.self.Muted = muted
	self := c.self
	c.selfMu.Unlock()
	c.post(func() {
		if err := c.room.Track(self); err != nil {
			log.Printf("CALL: mute presence: %v", err)
		}
	})
}

// SetDeafened silences local playback only. Nothing is signaled and
// nothing changes in what remote peers send or receive.
func (c *Call) SetDeafened(deafened bool) {
	c.media.SetDeafened(deafened)
}

func (c *Call) Muted() bool    { return c.media.Muted() }
func (c *Call) Deafened() bool { return c.media.Deafened() }

// StartShare acquires the screen and offers the new track to every open
// session. Acquisition blocks on the caller's goroutine; only the track
// fan-out runs on the dispatch loop.
func (c *Call) StartShare() error {
	if c.ended() {
		return ErrEnded
	}
	t, err := c.media.AcquireScreenShare()
	if err != nil {
		return err
	}
	// Track end, whether via StopShare or the OS-level stop control,
	// funnels into the same remove-track path.
	t.OnEnded(func() {
		c.post(func() {
			c.mgr.ApplyTrackChange(media.KindVideo, nil)
			c.media.ReleaseScreen()
		})
	})
	c.post(func() { c.mgr.ApplyTrackChange(media.KindVideo, t) })
	return nil
}

// StopShare releases the screen track; its ended hook removes it from
// every session.
func (c *Call) StopShare() {
	c.media.ReleaseScreen()
}

// UpdateProfile re-asserts presence with a new label and avatar.
func (c *Call) UpdateProfile(label, avatarRef string) {
	c.selfMu.Lock()
	c.self.Label = label
	c.self.AvatarRef = avatarRef
	self := c.self
	c.selfMu.Unlock()
	c.post(func() {
		if err := c.room.Track(self); err != nil {
			log.Printf("CALL: profile presence: %v", err)
		}
	})
}

// Hangup ends the call locally. In direct mode the remote is told with
// an explicit call-end; in room mode the presence leave is the only
// signal other members need.
func (c *Call) Hangup() {
	c.end("hangup", true)
}

func (c *Call) end(reason string, notifyRemote bool) {
	c.endOnce.Do(func() {
		c.phase.Store(int32(PhaseEnded))
		if c.mode == ModeDirect && notifyRemote {
			if env, err := signal.NewEnvelope(signal.KindCallEnd, c.room.Self(), "", signal.CallEndPayload{Reason: reason}); err == nil {
				_ = c.room.Publish(env)
			}
		}
		c.mgr.CloseAll()
		c.media.Close()
		if err := c.room.Leave(); err != nil {
			log.Printf("CALL: leave: %v", err)
		}
		log.Printf("CALL: ended (%s)", reason)
		// done closes last: Done() observers must find the sessions
		// closed and the room left.
		close(c.done)
		c.notifyPhase(PhaseEnded)
	})
}

// Phase returns the current lifecycle phase.
func (c *Call) Phase() Phase { return Phase(c.phase.Load()) }

func (c *Call) ended() bool { return c.Phase() == PhaseEnded }

// OnPhase registers a listener for phase transitions.
func (c *Call) OnPhase(fn func(Phase)) {
	c.phaseMu.Lock()
	c.phaseFns = append(c.phaseFns, fn)
	c.phaseMu.Unlock()
}

func (c *Call) notifyPhase(p Phase) {
	c.phaseMu.Lock()
	fns := make([]func(Phase), len(c.phaseFns))
	copy(fns, c.phaseFns)
	c.phaseMu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// Roster is the live membership of this call.
func (c *Call) Roster() *state.Roster { return c.roster }

// Sessions returns the participant IDs with an open peer connection.
func (c *Call) Sessions() []string { return c.mgr.IDs() }

// Self returns the local participant record as currently asserted.
func (c *Call) Self() state.Participant {
	c.selfMu.Lock()
	defer c.selfMu.Unlock()
	return c.self
}

// Duration reports how long the call has been connected; zero before
// the first remote description applied.
func (c *Call) Duration() time.Duration {
	ms := c.connectedAt.Load()
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}

// Done closes once the call has fully ended.
func (c *Call) Done() <-chan struct{} { return c.done }
