package chat

import (
	"encoding/json"
	"time"
)

// Message is one in-call text message. Messages are ephemeral: they
// live in a ring buffer and are lost when the process exits.
type Message struct {
	ID    string    `json:"id"`
	From  string    `json:"from"`
	Label string    `json:"label"`
	Body  string    `json:"body"`
	TS    time.Time `json:"ts"`
	Own   bool      `json:"own"`
}

// GameUpdate is one shared-game state relay. State is opaque here; the
// renderer owns its meaning. Last write per game wins.
type GameUpdate struct {
	Game  string          `json:"game"`
	From  string          `json:"from"`
	State json.RawMessage `json:"state"`
	TS    time.Time       `json:"ts"`
}
