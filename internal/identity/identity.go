// Package identity supplies the local user's stable identifier and
// profile at call start. The identifier is a libp2p peer ID derived from
// a persistent Ed25519 key; the profile (label, avatar reference) comes
// from config and is treated as read-only input by the call core.
package identity

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/voxmesh/voxmesh/internal/state"
)

// LoadOrCreateKey loads a persistent identity key from disk, or generates
// a new Ed25519 key and saves it on first run.
func LoadOrCreateKey(keyFile string) (crypto.PrivKey, bool, error) {
	data, err := os.ReadFile(keyFile)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err == nil {
			return priv, false, nil
		}
		log.Printf("IDENTITY: corrupt key at %s: %v (generating new key)", keyFile, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, false, err
	}

	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, false, fmt.Errorf("marshal identity key: %w", err)
	}

	if dir := filepath.Dir(keyFile); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, false, fmt.Errorf("create key directory: %w", err)
		}
	}
	if err := os.WriteFile(keyFile, raw, 0600); err != nil {
		return nil, false, fmt.Errorf("save identity key: %w", err)
	}

	return priv, true, nil
}

// PeerID derives the participant identifier string from a private key.
func PeerID(priv crypto.PrivKey) (string, error) {
	pid, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("derive peer id: %w", err)
	}
	return pid.String(), nil
}

// SelfParticipant assembles the local user's presence record.
func SelfParticipant(id, label, avatarRef string) state.Participant {
	if label == "" {
		label = shortID(id)
	}
	return state.Participant{ID: id, Label: label, AvatarRef: avatarRef}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
