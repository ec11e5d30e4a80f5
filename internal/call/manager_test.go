package call

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/voxmesh/voxmesh/internal/media"
	"github.com/voxmesh/voxmesh/internal/signal"
)

func newTestManager(t *testing.T, self string) (*Manager, *pubCapture, *media.SyntheticSource) {
	t.Helper()
	src := media.NewSyntheticSource()
	api, err := media.BuildAPI(src)
	if err != nil {
		t.Fatalf("BuildAPI: %v", err)
	}
	pub := &pubCapture{}
	m := NewManager(self, api, webrtc.Configuration{}, pub.publish, nil, Hooks{})
	t.Cleanup(m.CloseAll)

	mic, err := src.OpenMicrophone()
	if err != nil {
		t.Fatalf("OpenMicrophone: %v", err)
	}
	t.Cleanup(mic.Stop)
	m.ApplyTrackChange(media.KindAudio, mic)
	return m, pub, src
}

func (p *pubCapture) lastTo(t *testing.T, k signal.Kind, to string) signal.Envelope {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.envs) - 1; i >= 0; i-- {
		if p.envs[i].Kind == k && p.envs[i].To == to {
			return p.envs[i]
		}
	}
	t.Fatalf("no %s envelope for %s", k, to)
	return signal.Envelope{}
}

func decodeOffer(t *testing.T, pub *pubCapture) signal.OfferPayload {
	t.Helper()
	var p signal.OfferPayload
	if err := pub.last(t, signal.KindOffer).DecodePayload(&p); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	return p
}

func TestEnsureSessionIdempotent(t *testing.T) {
	m, pub, _ := newTestManager(t, "peer-a")
	if err := m.EnsureSession("peer-b"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if err := m.EnsureSession("peer-b"); err != nil {
		t.Fatalf("repeat EnsureSession: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", m.Len())
	}
	if n := pub.count(signal.KindOffer); n != 1 {
		t.Fatalf("offers = %d, want 1", n)
	}
	if err := m.EnsureSession("peer-a"); err != nil {
		t.Fatalf("self EnsureSession: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("session toward self was created")
	}
}

func TestGlareResolvesDeterministically(t *testing.T) {
	a, pubA, _ := newTestManager(t, "peer-a")
	b, pubB, _ := newTestManager(t, "peer-b")

	// Both sides observe the other's join at once and offer.
	if err := a.EnsureSession("peer-b"); err != nil {
		t.Fatalf("a offer: %v", err)
	}
	if err := b.EnsureSession("peer-a"); err != nil {
		t.Fatalf("b offer: %v", err)
	}
	offerA := decodeOffer(t, pubA)
	offerB := decodeOffer(t, pubB)

	// Each now receives the other's offer mid-cycle.
	if err := a.HandleOffer("peer-b", offerB); err != nil {
		t.Fatalf("a HandleOffer: %v", err)
	}
	if err := b.HandleOffer("peer-a", offerA); err != nil {
		t.Fatalf("b HandleOffer: %v", err)
	}

	// The smaller identifier yields and answers; the larger keeps its
	// offer and stays silent.
	if n := pubA.count(signal.KindAnswer); n != 1 {
		t.Fatalf("yielding side answers = %d, want 1", n)
	}
	if n := pubB.count(signal.KindAnswer); n != 0 {
		t.Fatalf("winning side answers = %d, want 0", n)
	}

	sa, ok := a.Session("peer-b")
	if !ok || sa.Offerer() {
		t.Fatalf("smaller side did not become answerer")
	}
	sb, ok := b.Session("peer-a")
	if !ok || !sb.Offerer() {
		t.Fatalf("larger side lost its offerer role")
	}

	// The winner applies the yielder's answer and the pair converges on
	// exactly one session each.
	var ans signal.AnswerPayload
	if err := pubA.last(t, signal.KindAnswer).DecodePayload(&ans); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if err := b.HandleAnswer("peer-a", ans); err != nil {
		t.Fatalf("b HandleAnswer: %v", err)
	}
	if sa.State() != StateConnected || sb.State() != StateConnected {
		t.Fatalf("states = %v/%v, want connected", sa.State(), sb.State())
	}
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("sessions = %d/%d, want 1/1", a.Len(), b.Len())
	}
}

func TestSignalingForUnknownPeerDropped(t *testing.T) {
	m, pub, _ := newTestManager(t, "peer-a")
	if err := m.HandleAnswer("ghost", signal.AnswerPayload{SDP: "junk"}); err != nil {
		t.Fatalf("stray answer: %v", err)
	}
	if err := m.HandleCandidate("ghost", signal.CandidateInit{Candidate: "junk"}); err != nil {
		t.Fatalf("stray candidate: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("stray signaling created a session")
	}
	if len(pub.envs) != 0 {
		t.Fatalf("stray signaling published %d envelopes", len(pub.envs))
	}
}

func TestShareFanOutAcrossSessions(t *testing.T) {
	m, pub, src := newTestManager(t, "peer-a")
	peers := []string{"peer-b", "peer-c"}
	remotes := make(map[string]*loopbackPeer, len(peers))
	for _, id := range peers {
		if err := m.EnsureSession(id); err != nil {
			t.Fatalf("EnsureSession %s: %v", id, err)
		}
		remotes[id] = newLoopbackPeer(t)
	}

	// answerAll completes the open offer cycle of every session.
	answerAll := func() {
		t.Helper()
		for id, r := range remotes {
			var p signal.OfferPayload
			if err := pub.lastTo(t, signal.KindOffer, id).DecodePayload(&p); err != nil {
				t.Fatalf("decode offer for %s: %v", id, err)
			}
			if err := m.HandleAnswer(id, signal.AnswerPayload{SDP: r.answer(t, p.SDP)}); err != nil {
				t.Fatalf("HandleAnswer %s: %v", id, err)
			}
		}
	}
	answerAll()
	if n := pub.count(signal.KindOffer); n != 2 {
		t.Fatalf("offers after setup = %d, want 2", n)
	}

	// A share fans out: one renegotiation per session, a video sender
	// everywhere.
	screen, err := src.OpenScreen()
	if err != nil {
		t.Fatalf("OpenScreen: %v", err)
	}
	t.Cleanup(screen.Stop)
	m.ApplyTrackChange(media.KindVideo, screen)
	if n := pub.count(signal.KindOffer); n != 4 {
		t.Fatalf("offers after share = %d, want 4", n)
	}
	for _, id := range peers {
		s, ok := m.Session(id)
		if !ok {
			t.Fatalf("session %s gone", id)
		}
		if kinds := s.SenderKinds(); len(kinds) != 2 {
			t.Fatalf("%s sender kinds = %v, want audio+video", id, kinds)
		}
	}
	answerAll()

	// Removing the share restores every session's original sender set.
	m.ApplyTrackChange(media.KindVideo, nil)
	if n := pub.count(signal.KindOffer); n != 6 {
		t.Fatalf("offers after share stop = %d, want 6", n)
	}
	for _, id := range peers {
		s, _ := m.Session(id)
		if kinds := s.SenderKinds(); len(kinds) != 1 || kinds[0] != media.KindAudio {
			t.Fatalf("%s sender kinds = %v, want [audio]", id, kinds)
		}
	}
}

func TestOfferFromUnknownPeerAnswers(t *testing.T) {
	m, pub, _ := newTestManager(t, "peer-b")
	remote := newLoopbackPeer(t)
	if err := m.HandleOffer("peer-a", signal.OfferPayload{SDP: remote.offer(t)}); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	s, ok := m.Session("peer-a")
	if !ok || s.Offerer() {
		t.Fatalf("offer did not create an answerer session")
	}
	if n := pub.count(signal.KindAnswer); n != 1 {
		t.Fatalf("answers = %d, want 1", n)
	}
	// The recorded local track rode along into the new session.
	kinds := s.SenderKinds()
	if len(kinds) != 1 || kinds[0] != media.KindAudio {
		t.Fatalf("sender kinds = %v, want [audio]", kinds)
	}
}
