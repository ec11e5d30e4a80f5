// Package chat carries the in-call extras that ride the signaling
// broadcast: ephemeral text messages and opaque shared-game state.
package chat

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxmesh/voxmesh/internal/signal"
	"github.com/voxmesh/voxmesh/internal/util"
)

// DefaultBufferSize is the number of messages kept in memory.
const DefaultBufferSize = 200

// Channel is the slice of the signaling room the chat manager needs.
// *signal.Room satisfies it.
type Channel interface {
	Self() string
	Publish(env signal.Envelope) error
	OnMessage(fn func(signal.Envelope))
}

// Manager buffers chat and relays game state for one room.
type Manager struct {
	ch    Channel
	label string

	mu       sync.RWMutex
	messages *util.Ring[Message]
	games    map[string]GameUpdate
	msgFns   []func(Message)
	gameFns  []func(GameUpdate)
}

// New attaches a chat manager to a joined room. bufferSize <= 0 uses
// the default.
func New(ch Channel, selfLabel string, bufferSize int) *Manager {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	m := &Manager{
		ch:       ch,
		label:    selfLabel,
		messages: util.NewRing[Message](bufferSize),
		games:    make(map[string]GameUpdate),
	}
	ch.OnMessage(m.handle)
	return m
}

// Send broadcasts a chat message and records it locally. The local copy
// is needed because the transport never echoes our own envelopes back.
func (m *Manager) Send(body string) (Message, error) {
	m.mu.RLock()
	label := m.label
	m.mu.RUnlock()
	msg := Message{
		ID:    uuid.NewString(),
		From:  m.ch.Self(),
		Label: label,
		Body:  body,
		TS:    time.Now(),
		Own:   true,
	}
	env, err := signal.NewEnvelope(signal.KindChat, m.ch.Self(), "", signal.ChatPayload{
		ID:    msg.ID,
		Label: msg.Label,
		Body:  msg.Body,
	})
	if err != nil {
		return Message{}, err
	}
	if err := m.ch.Publish(env); err != nil {
		return Message{}, err
	}
	m.record(msg)
	return msg, nil
}

// PublishGameState broadcasts a game's full state. Last write wins on
// every receiver; there is no merging.
func (m *Manager) PublishGameState(game string, stateJSON json.RawMessage) error {
	env, err := signal.NewEnvelope(signal.KindGameState, m.ch.Self(), "", signal.GameStatePayload{
		Game:  game,
		State: stateJSON,
	})
	if err != nil {
		return err
	}
	if err := m.ch.Publish(env); err != nil {
		return err
	}
	m.recordGame(GameUpdate{Game: game, From: m.ch.Self(), State: stateJSON, TS: time.Now()})
	return nil
}

// History returns the buffered messages, oldest first.
func (m *Manager) History() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.messages.All()
}

// GameState returns the last seen state for a game.
func (m *Manager) GameState(game string) (GameUpdate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.games[game]
	return u, ok
}

// OnMessage registers a listener for new messages, own sends included.
func (m *Manager) OnMessage(fn func(Message)) {
	m.mu.Lock()
	m.msgFns = append(m.msgFns, fn)
	m.mu.Unlock()
}

// OnGameState registers a listener for game-state updates.
func (m *Manager) OnGameState(fn func(GameUpdate)) {
	m.mu.Lock()
	m.gameFns = append(m.gameFns, fn)
	m.mu.Unlock()
}

// SetLabel changes the label stamped on outgoing messages.
func (m *Manager) SetLabel(label string) {
	m.mu.Lock()
	m.label = label
	m.mu.Unlock()
}

// handle runs on the room's read loop. Kinds other than chat and
// game-state belong to the call layer and are ignored here.
func (m *Manager) handle(env signal.Envelope) {
	switch env.Kind {
	case signal.KindChat:
		var p signal.ChatPayload
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("CHAT: %v", err)
			return
		}
		m.record(Message{
			ID:    p.ID,
			From:  env.From,
			Label: p.Label,
			Body:  p.Body,
			TS:    time.UnixMilli(env.TS),
		})
	case signal.KindGameState:
		var p signal.GameStatePayload
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("CHAT: %v", err)
			return
		}
		m.recordGame(GameUpdate{
			Game:  p.Game,
			From:  env.From,
			State: p.State,
			TS:    time.UnixMilli(env.TS),
		})
	}
}

func (m *Manager) record(msg Message) {
	m.mu.Lock()
	m.messages.Add(msg)
	fns := make([]func(Message), len(m.msgFns))
	copy(fns, m.msgFns)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func (m *Manager) recordGame(u GameUpdate) {
	m.mu.Lock()
	m.games[u.Game] = u
	fns := make([]func(GameUpdate), len(m.gameFns))
	copy(fns, m.gameFns)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}
