package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// startPair brings up two connected buses joined to the same room.
func startPair(t *testing.T, ctx context.Context, topic string) (*Room, *Room) {
	t.Helper()

	busA, err := NewBus(ctx, Config{})
	if err != nil {
		t.Fatalf("bus A: %v", err)
	}
	t.Cleanup(func() { busA.Close() })

	busB, err := NewBus(ctx, Config{})
	if err != nil {
		t.Fatalf("bus B: %v", err)
	}
	t.Cleanup(func() { busB.Close() })

	if len(busA.Addrs()) == 0 {
		t.Fatalf("bus A has no listen addrs")
	}

	err = busA.Connect(ctx, peer.AddrInfo{
		ID:    busB.Host().ID(),
		Addrs: busB.Host().Addrs(),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	roomA, err := busA.Join(ctx, topic)
	if err != nil {
		t.Fatalf("join A: %v", err)
	}
	roomB, err := busB.Join(ctx, topic)
	if err != nil {
		t.Fatalf("join B: %v", err)
	}
	return roomA, roomB
}

// publishUntil republishes until the predicate observes delivery or the
// deadline passes. Gossipsub needs a moment to learn subscriptions, so
// the first publishes can legally vanish.
func publishUntil(t *testing.T, room *Room, env Envelope, got func() bool) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if err := room.Publish(env); err != nil {
			t.Fatalf("publish: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
		if got() {
			return
		}
	}
	t.Fatalf("message %s never delivered", env.Kind)
}

func TestRoomDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("libp2p integration test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomA, roomB := startPair(t, ctx, "voxmesh.test.delivery")

	var mu sync.Mutex
	var kinds []Kind
	roomB.OnMessage(func(env Envelope) {
		mu.Lock()
		kinds = append(kinds, env.Kind)
		mu.Unlock()
	})

	env, err := NewEnvelope(KindChat, roomA.Self(), "", ChatPayload{ID: "m1", Body: "hi"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	publishUntil(t, roomA, env, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) > 0
	})
}

func TestRoomFiltersSelfAndMistargeted(t *testing.T) {
	if testing.Short() {
		t.Skip("libp2p integration test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomA, roomB := startPair(t, ctx, "voxmesh.test.filtering")

	var mu sync.Mutex
	var gotA, gotB []Envelope
	roomA.OnMessage(func(env Envelope) {
		mu.Lock()
		gotA = append(gotA, env)
		mu.Unlock()
	})
	roomB.OnMessage(func(env Envelope) {
		mu.Lock()
		gotB = append(gotB, env)
		mu.Unlock()
	})

	// Targeted at a third identity: neither member may see it.
	stranger, _ := NewEnvelope(KindOffer, roomA.Self(), "someone-else", OfferPayload{SDP: "x"})
	if err := roomA.Publish(stranger); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Targeted at B: only B sees it, and A never sees its own echo.
	targeted, _ := NewEnvelope(KindOffer, roomA.Self(), roomB.Self(), OfferPayload{SDP: "y"})
	publishUntil(t, roomA, targeted, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotB) > 0
	})

	mu.Lock()
	defer mu.Unlock()
	if len(gotA) != 0 {
		t.Fatalf("A received %d envelopes, want 0 (self-echo or mistargeted leak)", len(gotA))
	}
	for _, env := range gotB {
		if env.To != roomB.Self() {
			t.Fatalf("B received envelope targeted at %q", env.To)
		}
	}
}

func TestJoinIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("libp2p integration test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := NewBus(ctx, Config{})
	if err != nil {
		t.Fatalf("bus: %v", err)
	}
	defer bus.Close()

	r1, err := bus.Join(ctx, "voxmesh.test.idempotent")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	r2, err := bus.Join(ctx, "voxmesh.test.idempotent")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("second Join returned a new handle")
	}

	if err := r1.Leave(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := r1.Leave(); err != nil {
		t.Fatalf("second leave: %v", err)
	}

	// After leave, Join starts a fresh handle.
	r3, err := bus.Join(ctx, "voxmesh.test.idempotent")
	if err != nil {
		t.Fatalf("join after leave: %v", err)
	}
	if r3 == r1 {
		t.Fatalf("Join after Leave returned the dead handle")
	}
}
