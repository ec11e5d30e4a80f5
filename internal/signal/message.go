package signal

import (
	"encoding/json"
	"fmt"

	"github.com/voxmesh/voxmesh/internal/proto"
	"github.com/voxmesh/voxmesh/internal/state"
)

// Kind discriminates the envelope payload. The set is closed: anything
// else read off the wire is dropped by the room loop.
type Kind string

const (
	KindPresence  Kind = "presence"
	KindLeave     Kind = "leave"
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "ice-candidate"
	KindCallEnd   Kind = "call-end"
	KindChat      Kind = "chat"
	KindGameState Kind = "game-state"
)

// Envelope is the one wire shape every room message uses. To is empty for
// broadcasts; a non-empty To addresses exactly one member, and everyone
// else drops the envelope before any handler sees it.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	From    string          `json:"from"`
	To      string          `json:"to,omitempty"`
	TS      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope. Panics are not an
// option on the send path, so marshal errors are returned to the caller.
func NewEnvelope(kind Kind, from, to string, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("signal: marshal %s payload: %w", kind, err)
		}
		raw = b
	}
	return Envelope{Kind: kind, From: from, To: to, TS: proto.NowMillis(), Payload: raw}, nil
}

// PresencePayload is the self-reported membership record each participant
// broadcasts on join and re-asserts on every heartbeat and attribute
// change. There is no separate update message: re-assertion is the update.
type PresencePayload struct {
	Participant state.Participant `json:"participant"`
}

// OfferPayload / AnswerPayload carry SDP blobs between exactly two peers.
type OfferPayload struct {
	SDP string `json:"sdp"`
}

type AnswerPayload struct {
	SDP string `json:"sdp"`
}

// CandidateInit is the W3C RTCIceCandidateInit shape, kept independent of
// the webrtc package so the wire format survives library upgrades.
type CandidateInit struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type CandidatePayload struct {
	Candidate CandidateInit `json:"candidate"`
}

// CallEndPayload ends a 1:1 call deterministically instead of waiting for
// the remote's presence to expire.
type CallEndPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ChatPayload is an ephemeral in-call text message. It rides the same
// broadcast primitive as signaling and is lost on process restart.
type ChatPayload struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Body  string `json:"body"`
}

// GameStatePayload relays opaque shared-game state to all room members.
// Last write wins; the core does not interpret State.
type GameStatePayload struct {
	Game  string          `json:"game"`
	State json.RawMessage `json:"state"`
}

// DecodePayload unmarshals the envelope payload into out.
func (e Envelope) DecodePayload(out any) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("signal: decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// IsPresence reports whether the envelope belongs on the presence path
// rather than the message path.
func (e Envelope) IsPresence() bool {
	return e.Kind == KindPresence || e.Kind == KindLeave
}
