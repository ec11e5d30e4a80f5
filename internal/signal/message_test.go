package signal

import (
	"testing"

	"github.com/voxmesh/voxmesh/internal/state"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(KindOffer, "peerA", "peerB", OfferPayload{SDP: "v=0"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.From != "peerA" || env.To != "peerB" || env.TS == 0 {
		t.Fatalf("envelope fields not populated: %+v", env)
	}

	var p OfferPayload
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.SDP != "v=0" {
		t.Fatalf("SDP = %q", p.SDP)
	}
}

func TestEnvelopeNilPayload(t *testing.T) {
	env, err := NewEnvelope(KindLeave, "peerA", "", nil)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.Payload != nil {
		t.Fatalf("leave payload = %s, want empty", env.Payload)
	}
}

func TestDecodePayloadError(t *testing.T) {
	env := Envelope{Kind: KindChat, From: "x", Payload: []byte("{broken")}
	var p ChatPayload
	if err := env.DecodePayload(&p); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestIsPresence(t *testing.T) {
	presence := []Kind{KindPresence, KindLeave}
	messages := []Kind{KindOffer, KindAnswer, KindCandidate, KindCallEnd, KindChat, KindGameState}

	for _, k := range presence {
		if !(Envelope{Kind: k}).IsPresence() {
			t.Errorf("%s should be presence", k)
		}
	}
	for _, k := range messages {
		if (Envelope{Kind: k}).IsPresence() {
			t.Errorf("%s should not be presence", k)
		}
	}
}

func TestPresencePayloadCarriesParticipant(t *testing.T) {
	part := state.Participant{ID: "p1", Label: "alice", Muted: true}
	env, err := NewEnvelope(KindPresence, "p1", "", PresencePayload{Participant: part})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	var p PresencePayload
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Participant.Label != "alice" || !p.Participant.Muted {
		t.Fatalf("participant = %+v", p.Participant)
	}
}
