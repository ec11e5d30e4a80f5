// Package call manages the WebRTC mesh for one joined room: a peer
// connection per present participant, signaled over the room topic. It
// couples to the signaling layer through the Transport interface only.
package call

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/voxmesh/voxmesh/internal/media"
	"github.com/voxmesh/voxmesh/internal/signal"
)

// Hooks are the manager's upcalls into the owning call. RemoteApplied
// and the exec-dispatched callbacks run on the dispatch loop;
// RemoteTrack runs on a pion goroutine.
type Hooks struct {
	RemoteApplied func(remoteID string)
	SessionFailed func(remoteID string)
	RemoteTrack   func(remoteID string, track *webrtc.TrackRemote)
}

// Manager owns the session set. Its mutating methods must run on the
// owning call's dispatch loop; the mutex only guards the map so the
// read-only accessors work from anywhere.
type Manager struct {
	self    string
	api     *webrtc.API
	cfg     webrtc.Configuration
	publish func(signal.Envelope) error
	exec    func(func())
	hooks   Hooks

	mu       sync.Mutex
	sessions map[string]*Session
	local    map[string]*media.Track
}

// NewManager builds a session manager. exec posts a function onto the
// owning dispatch loop and is how pion-goroutine events re-enter it.
func NewManager(self string, api *webrtc.API, cfg webrtc.Configuration, publish func(signal.Envelope) error, exec func(func()), hooks Hooks) *Manager {
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	return &Manager{
		self:     self,
		api:      api,
		cfg:      cfg,
		publish:  publish,
		exec:     exec,
		hooks:    hooks,
		sessions: make(map[string]*Session),
		local:    make(map[string]*media.Track),
	}
}

func (m *Manager) get(remoteID string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[remoteID]
	m.mu.Unlock()
	return s, ok
}

// EnsureSession opens an offerer session toward a participant. No-op
// when one is already open, so observing the same join twice is safe.
func (m *Manager) EnsureSession(remoteID string) error {
	if remoteID == m.self {
		return nil
	}
	if _, ok := m.get(remoteID); ok {
		return nil
	}
	s, err := m.create(remoteID, true)
	if err != nil {
		return err
	}
	log.Printf("CALL [%s]: offering", shortID(remoteID))
	if err := s.Start(); err != nil {
		m.remove(remoteID, s)
		s.Close()
		return err
	}
	return nil
}

// CloseSession closes and removes a participant's session, if any. The
// removal happens before the close so dispatch lookups already miss.
func (m *Manager) CloseSession(remoteID string) {
	m.mu.Lock()
	s, ok := m.sessions[remoteID]
	delete(m.sessions, remoteID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll tears every session down.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// ApplyTrackChange fans a local track change out to every open session
// and records it for sessions created later. A nil track removes the
// kind. Mute never comes through here: it is the track's enabled flag.
func (m *Manager) ApplyTrackChange(kind string, t *media.Track) {
	m.mu.Lock()
	if t == nil {
		delete(m.local, kind)
	} else {
		m.local[kind] = t
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		var err error
		if t == nil {
			err = s.ClearLocal(kind)
		} else {
			err = s.SetLocal(t)
		}
		if err != nil {
			log.Printf("CALL [%s]: %s track change: %v", shortID(s.remoteID), kind, err)
		}
	}
}

// HandleOffer routes a remote offer, creating an answerer session when
// none exists. Simultaneous offers resolve deterministically on both
// sides: the lexicographically smaller identifier abandons its own
// offer and answers, the larger keeps its offer and ignores the
// incoming one.
func (m *Manager) HandleOffer(from string, p signal.OfferPayload) error {
	s, ok := m.get(from)
	if ok && s.Negotiating() {
		if m.self < from {
			log.Printf("CALL [%s]: offer glare, yielding", shortID(from))
			m.CloseSession(from)
			ok = false
		} else {
			log.Printf("CALL [%s]: offer glare, keeping ours", shortID(from))
			return nil
		}
	}
	if !ok {
		var err error
		if s, err = m.create(from, false); err != nil {
			return err
		}
		log.Printf("CALL [%s]: answering", shortID(from))
	}
	return s.HandleOffer(p.SDP)
}

// HandleAnswer completes an offer cycle. Answers for unknown sessions
// (already closed, or a departed peer) are dropped.
func (m *Manager) HandleAnswer(from string, p signal.AnswerPayload) error {
	s, ok := m.get(from)
	if !ok {
		return nil
	}
	return s.HandleAnswer(p.SDP)
}

// HandleCandidate routes a remote ICE candidate. Candidates for unknown
// sessions are dropped.
func (m *Manager) HandleCandidate(from string, ci signal.CandidateInit) error {
	s, ok := m.get(from)
	if !ok {
		return nil
	}
	return s.HandleCandidate(ci)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// IDs returns the participant identifiers with an open session.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Session returns the open session for a participant, if any.
func (m *Manager) Session(remoteID string) (*Session, bool) {
	return m.get(remoteID)
}

func (m *Manager) create(remoteID string, offerer bool) (*Session, error) {
	pc, err := m.api.NewPeerConnection(m.cfg)
	if err != nil {
		return nil, fmt.Errorf("call: peer connection for %s: %w", shortID(remoteID), err)
	}
	s := newSession(m.self, remoteID, offerer, pc, m.publish)
	s.onRemoteApplied = func() {
		if m.hooks.RemoteApplied != nil {
			m.hooks.RemoteApplied(remoteID)
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if m.hooks.RemoteTrack != nil {
			m.hooks.RemoteTrack(remoteID, track)
		}
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if st != webrtc.PeerConnectionStateFailed {
			return
		}
		m.exec(func() { m.failSession(remoteID, s) })
	})

	m.mu.Lock()
	for kind, t := range m.local {
		s.local[kind] = t
	}
	m.sessions[remoteID] = s
	m.mu.Unlock()
	return s, nil
}

// remove drops the session only if it is still the current one for its
// participant; a replacement created meanwhile stays.
func (m *Manager) remove(remoteID string, s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[remoteID] != s {
		return false
	}
	delete(m.sessions, remoteID)
	return true
}

// failSession closes a session whose transport failed. The participant's
// roster record stays: negotiation failure is scoped to the session and
// EnsureSession may be retried.
func (m *Manager) failSession(remoteID string, s *Session) {
	if !m.remove(remoteID, s) {
		return
	}
	s.Close()
	log.Printf("CALL [%s]: transport failed, session closed", shortID(remoteID))
	if m.hooks.SessionFailed != nil {
		m.hooks.SessionFailed(remoteID)
	}
}
