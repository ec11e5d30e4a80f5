package call

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/voxmesh/voxmesh/internal/media"
	"github.com/voxmesh/voxmesh/internal/signal"
)

// SessionState tracks one session's negotiation progress.
type SessionState int32

const (
	StateNew SessionState = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one peer connection toward one remote participant. Except
// for Close and the accessors, every method must run on the owning
// call's dispatch loop; the unexported negotiation fields rely on that.
type Session struct {
	self     string
	remoteID string
	offerer  bool
	pc       *webrtc.PeerConnection
	publish  func(signal.Envelope) error

	state  atomic.Int32
	closed atomic.Bool

	// Loop-confined negotiation state.
	negotiating bool
	queued      bool
	remoteSet   bool
	pendingICE  []signal.CandidateInit

	// Desired outgoing tracks by kind, and the senders carrying them.
	local   map[string]*media.Track
	senders map[string]*webrtc.RTPSender

	onRemoteApplied func()
}

func newSession(self, remoteID string, offerer bool, pc *webrtc.PeerConnection, publish func(signal.Envelope) error) *Session {
	s := &Session{
		self:     self,
		remoteID: remoteID,
		offerer:  offerer,
		pc:       pc,
		publish:  publish,
		local:    make(map[string]*media.Track),
		senders:  make(map[string]*webrtc.RTPSender),
	}

	// Trickle ICE: candidates go out as they are gathered, targeted at
	// the remote. Runs on a pion goroutine; publish is safe there.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || s.closed.Load() {
			return
		}
		init := c.ToJSON()
		payload := signal.CandidatePayload{Candidate: signal.CandidateInit{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		}}
		if err := s.send(signal.KindCandidate, payload); err != nil {
			log.Printf("CALL [%s]: send candidate: %v", shortID(remoteID), err)
		}
	})

	return s
}

// RemoteID returns the remote participant identifier.
func (s *Session) RemoteID() string { return s.remoteID }

// Offerer reports whether this side initiated the session.
func (s *Session) Offerer() bool { return s.offerer }

// State returns the session's negotiation state.
func (s *Session) State() SessionState {
	if s.closed.Load() {
		return StateClosed
	}
	return SessionState(s.state.Load())
}

// Negotiating reports an offer cycle in flight.
func (s *Session) Negotiating() bool { return s.negotiating }

func (s *Session) send(kind signal.Kind, payload any) error {
	env, err := signal.NewEnvelope(kind, s.self, s.remoteID, payload)
	if err != nil {
		return err
	}
	return s.publish(env)
}

// Start runs the initial offer cycle with the desired tracks attached.
func (s *Session) Start() error {
	if _, err := s.attachLocal(); err != nil {
		return err
	}
	return s.startOffer()
}

func (s *Session) startOffer() error {
	if s.closed.Load() {
		return nil
	}
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("%w: create offer for %s: %v", ErrNegotiationFailed, shortID(s.remoteID), err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: apply local offer for %s: %v", ErrNegotiationFailed, shortID(s.remoteID), err)
	}
	s.negotiating = true
	if SessionState(s.state.Load()) == StateNew {
		s.state.Store(int32(StateNegotiating))
	}
	return s.send(signal.KindOffer, signal.OfferPayload{SDP: offer.SDP})
}

// HandleOffer applies a remote offer and answers it. Serves both the
// initial answerer cycle and remote-initiated renegotiation.
func (s *Session) HandleOffer(sdp string) error {
	if s.closed.Load() {
		return nil
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: apply offer from %s: %v", ErrNegotiationFailed, shortID(s.remoteID), err)
	}
	s.flushCandidates()

	// Attach desired tracks before answering so they ride the slots the
	// offer provides.
	if _, err := s.attachLocal(); err != nil {
		return err
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("%w: create answer for %s: %v", ErrNegotiationFailed, shortID(s.remoteID), err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: apply local answer for %s: %v", ErrNegotiationFailed, shortID(s.remoteID), err)
	}
	if err := s.send(signal.KindAnswer, signal.AnswerPayload{SDP: answer.SDP}); err != nil {
		return err
	}
	s.markConnected()

	// A sender the offer had no media section for was left out of the
	// answer; an immediate follow-up offer carries it.
	if s.hasUnmatchedSender() {
		return s.startOffer()
	}
	if s.queued {
		s.queued = false
		return s.syncTracks()
	}
	return nil
}

// HandleAnswer completes our offer cycle. Answers arriving with no cycle
// in flight are stale and dropped.
func (s *Session) HandleAnswer(sdp string) error {
	if s.closed.Load() || !s.negotiating {
		return nil
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: apply answer from %s: %v", ErrNegotiationFailed, shortID(s.remoteID), err)
	}
	s.flushCandidates()
	s.markConnected()
	s.negotiating = false
	if s.queued {
		s.queued = false
		return s.syncTracks()
	}
	return nil
}

// HandleCandidate applies a remote ICE candidate, buffering it when the
// remote description has not landed yet. Candidates can legally arrive
// before, between, and after the descriptions.
func (s *Session) HandleCandidate(ci signal.CandidateInit) error {
	if s.closed.Load() {
		return nil
	}
	if !s.remoteSet {
		s.pendingICE = append(s.pendingICE, ci)
		return nil
	}
	return s.addCandidate(ci)
}

func (s *Session) addCandidate(ci signal.CandidateInit) error {
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

func (s *Session) flushCandidates() {
	s.remoteSet = true
	for _, ci := range s.pendingICE {
		if err := s.addCandidate(ci); err != nil {
			log.Printf("CALL [%s]: buffered candidate: %v", shortID(s.remoteID), err)
		}
	}
	s.pendingICE = nil
}

func (s *Session) markConnected() {
	if SessionState(s.state.Load()) == StateConnected {
		return
	}
	s.state.Store(int32(StateConnected))
	log.Printf("CALL [%s]: negotiated", shortID(s.remoteID))
	if s.onRemoteApplied != nil {
		s.onRemoteApplied()
	}
}

// SetLocal installs or replaces an outgoing track of its kind.
func (s *Session) SetLocal(t *media.Track) error {
	s.local[t.Kind()] = t
	return s.syncTracks()
}

// ClearLocal removes the outgoing track of a kind.
func (s *Session) ClearLocal(kind string) error {
	delete(s.local, kind)
	return s.syncTracks()
}

// syncTracks reconciles the senders with the desired set. Replacing the
// track on an existing sender needs no signaling; adding or removing a
// sender starts an offer cycle, or queues one when a cycle is already in
// flight.
func (s *Session) syncTracks() error {
	if s.closed.Load() {
		return nil
	}
	if s.negotiating {
		s.queued = true
		return nil
	}
	changed, err := s.attachLocal()
	if err != nil {
		return err
	}
	for kind, sender := range s.senders {
		if _, want := s.local[kind]; want {
			continue
		}
		if err := s.pc.RemoveTrack(sender); err != nil {
			return fmt.Errorf("%w: remove %s track for %s: %v", ErrNegotiationFailed, kind, shortID(s.remoteID), err)
		}
		delete(s.senders, kind)
		changed = true
	}
	if !changed {
		return nil
	}
	return s.startOffer()
}

// attachLocal ensures a sender exists for every desired track, replacing
// in place where one already does. Reports whether a sender was added.
func (s *Session) attachLocal() (bool, error) {
	added := false
	for kind, t := range s.local {
		if sender, ok := s.senders[kind]; ok {
			if sender.Track() != t.Local() {
				if err := sender.ReplaceTrack(t.Local()); err != nil {
					return added, fmt.Errorf("%w: replace %s track for %s: %v", ErrNegotiationFailed, kind, shortID(s.remoteID), err)
				}
			}
			continue
		}
		sender, err := s.pc.AddTrack(t.Local())
		if err != nil {
			return added, fmt.Errorf("%w: add %s track for %s: %v", ErrNegotiationFailed, kind, shortID(s.remoteID), err)
		}
		s.senders[kind] = sender
		added = true
	}
	return added, nil
}

// hasUnmatchedSender reports a sender whose transceiver got no mid in
// the current descriptions, meaning it is attached but not negotiated.
func (s *Session) hasUnmatchedSender() bool {
	for _, tr := range s.pc.GetTransceivers() {
		if tr.Sender() != nil && tr.Sender().Track() != nil && tr.Mid() == "" {
			return true
		}
	}
	return false
}

// SenderKinds returns the kinds currently attached to this session.
func (s *Session) SenderKinds() []string {
	kinds := make([]string, 0, len(s.senders))
	for kind := range s.senders {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Close tears the peer connection down. Idempotent and safe from any
// goroutine; loop closures check the closed flag before touching pion
// state, so a session closed mid-negotiation ignores late completions.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if err := s.pc.Close(); err != nil {
		log.Printf("CALL [%s]: close: %v", shortID(s.remoteID), err)
	}
}
