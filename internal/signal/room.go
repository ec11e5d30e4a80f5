package signal

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/voxmesh/voxmesh/internal/state"
)

// Room is the handle for one joined room topic. Callbacks run on the
// room's single read loop, one envelope at a time, so handlers never race
// each other. The loop filters totally: envelopes from the local identity,
// and envelopes addressed to someone else, never reach a callback.
type Room struct {
	bus   *Bus
	name  string
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	mu         sync.RWMutex
	onMessage  []func(Envelope)
	onPresence []func(Envelope)
	left       bool
}

func newRoom(bus *Bus, name string, topic *pubsub.Topic, sub *pubsub.Subscription) *Room {
	return &Room{bus: bus, name: name, topic: topic, sub: sub}
}

// Name returns the topic name this handle is joined to.
func (r *Room) Name() string { return r.name }

// Self returns the local participant identifier.
func (r *Room) Self() string { return r.bus.self }

// OnMessage registers a callback for signaling envelopes (offer, answer,
// ice-candidate, call-end, chat, game-state).
func (r *Room) OnMessage(fn func(Envelope)) {
	r.mu.Lock()
	r.onMessage = append(r.onMessage, fn)
	r.mu.Unlock()
}

// OnPresence registers a callback for presence and leave envelopes.
func (r *Room) OnPresence(fn func(Envelope)) {
	r.mu.Lock()
	r.onPresence = append(r.onPresence, fn)
	r.mu.Unlock()
}

// Publish sends an envelope to the room. Fire-and-forget: no ack, no
// retry, and ordering across kinds is not guaranteed.
func (r *Room) Publish(env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.topic.Publish(context.Background(), b)
}

// Track re-asserts the local participant's state. This is the single
// source of truth remote members observe — it must be called on every
// attribute change (mute toggle) and on each heartbeat tick.
func (r *Room) Track(p state.Participant) error {
	env, err := NewEnvelope(KindPresence, r.bus.self, "", PresencePayload{Participant: p})
	if err != nil {
		return err
	}
	return r.Publish(env)
}

// Leave broadcasts a presence-leave for the local identity, then
// unsubscribes and closes the topic handle. Idempotent.
func (r *Room) Leave() error {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return nil
	}
	r.left = true
	r.mu.Unlock()

	if env, err := NewEnvelope(KindLeave, r.bus.self, "", nil); err == nil {
		_ = r.Publish(env)
	}

	r.sub.Cancel()
	err := r.topic.Close()
	r.bus.forget(r.name)
	log.Printf("SIGNAL: left %s", r.name)
	return err
}

// readLoop decodes and dispatches envelopes until the subscription ends.
func (r *Room) readLoop(ctx context.Context) {
	for {
		m, err := r.sub.Next(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			continue
		}
		if env.Kind == "" || env.From == "" {
			continue
		}
		// The topic is a broadcast medium shared by all members: drop our
		// own echoes and anything addressed to a different identity.
		if env.From == r.bus.self {
			continue
		}
		if env.To != "" && env.To != r.bus.self {
			continue
		}

		r.dispatch(env)
	}
}

func (r *Room) dispatch(env Envelope) {
	r.mu.RLock()
	var handlers []func(Envelope)
	if env.IsPresence() {
		handlers = append(handlers, r.onPresence...)
	} else {
		switch env.Kind {
		case KindOffer, KindAnswer, KindCandidate, KindCallEnd, KindChat, KindGameState:
			handlers = append(handlers, r.onMessage...)
		default:
			// Unknown kind: the variant set is closed.
		}
	}
	r.mu.RUnlock()

	for _, fn := range handlers {
		fn(env)
	}
}
