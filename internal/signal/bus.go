// Package signal carries call signaling over libp2p gossipsub. One pubsub
// topic per room; delivery is at-least-once and unordered, so consumers
// must tolerate out-of-order offer/answer/ICE (the call package buffers
// early candidates for exactly this reason). Publish is fire-and-forget.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/voxmesh/voxmesh/internal/proto"
	"github.com/voxmesh/voxmesh/internal/util"
)

func init() {
	// Silence noisy libp2p subsystems — dial failures and backoff errors
	// go to stderr by default and pollute terminal output.
	logging.SetLogLevel("swarm2", "error")
	logging.SetLogLevel("autonat", "warn")
}

// ErrUnavailable is returned when the pubsub relay cannot be joined. The
// caller surfaces it to the user and must not create any peer session.
var ErrUnavailable = errors.New("signal: relay unavailable")

// Config configures the signaling bus host.
type Config struct {
	// Key is the persistent identity key; the derived peer ID is the
	// participant identifier every other component keys on.
	Key crypto.PrivKey

	// ListenPort is the TCP port for the libp2p host. 0 picks a free port.
	ListenPort int

	// MdnsTag enables LAN peer discovery when non-empty.
	MdnsTag string
}

// Bus owns the libp2p host and gossipsub instance, and hands out one Room
// handle per room key. Join is idempotent per process: re-joining a key
// that is already joined returns the existing handle.
type Bus struct {
	host host.Host
	ps   *pubsub.PubSub
	self string

	mu    sync.Mutex
	rooms map[string]*Room
}

type mdnsNotifee struct{ h host.Host }

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), util.DefaultConnectTimeout)
	defer cancel()
	_ = n.h.Connect(ctx, pi)
}

// NewBus starts the libp2p host and gossipsub router.
func NewBus(ctx context.Context, cfg Config) (*Bus, error) {
	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort)),
	}
	if cfg.Key != nil {
		opts = append(opts, libp2p.Identity(cfg.Key))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("signal: start host: %w", err)
	}

	if cfg.MdnsTag != "" {
		md := mdns.NewMdnsService(h, cfg.MdnsTag, &mdnsNotifee{h: h})
		if err := md.Start(); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("signal: start mdns: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("signal: start gossipsub: %w", err)
	}

	b := &Bus{
		host:  h,
		ps:    ps,
		self:  h.ID().String(),
		rooms: make(map[string]*Room),
	}
	log.Printf("SIGNAL: bus up, peer %s", h.ID())
	for _, a := range b.Addrs() {
		log.Printf("SIGNAL:   listening on %s/p2p/%s", a, h.ID())
	}
	return b, nil
}

// Self returns the local participant identifier (the peer ID string).
func (b *Bus) Self() string { return b.self }

// Addrs returns the host's listen multiaddresses.
func (b *Bus) Addrs() []ma.Multiaddr { return b.host.Addrs() }

// Host exposes the underlying libp2p host for direct dialing (LAN tests,
// bootstrap connects).
func (b *Bus) Host() host.Host { return b.host }

// Connect dials a peer directly. Gossipsub meshes form on their own once
// hosts are connected; this is for bootstrap and tests.
func (b *Bus) Connect(ctx context.Context, pi peer.AddrInfo) error {
	return b.host.Connect(ctx, pi)
}

// Join subscribes to the topic for roomKey and returns its handle.
// Idempotent: a second Join for the same key returns the existing handle.
// Fails with ErrUnavailable when the relay topic cannot be joined.
func (b *Bus) Join(ctx context.Context, topicName string) (*Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.rooms[topicName]; ok {
		return r, nil
	}

	topic, err := b.ps.Join(topicName)
	if err != nil {
		return nil, fmt.Errorf("%w: join %s: %v", ErrUnavailable, topicName, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrUnavailable, topicName, err)
	}

	r := newRoom(b, topicName, topic, sub)
	b.rooms[topicName] = r
	go r.readLoop(ctx)

	log.Printf("SIGNAL: joined %s", topicName)
	return r, nil
}

// forget drops a room handle after leave so a later Join starts fresh.
func (b *Bus) forget(topicName string) {
	b.mu.Lock()
	delete(b.rooms, topicName)
	b.mu.Unlock()
}

// Close leaves every room and shuts the host down.
func (b *Bus) Close() error {
	b.mu.Lock()
	rooms := make([]*Room, 0, len(b.rooms))
	for _, r := range b.rooms {
		rooms = append(rooms, r)
	}
	b.mu.Unlock()

	for _, r := range rooms {
		_ = r.Leave()
	}
	return b.host.Close()
}

// RoomTopic and DirectTopic re-export the topic naming scheme so callers
// don't import proto just for this.
func RoomTopic(key string) string   { return proto.RoomTopic(key) }
func DirectTopic(key string) string { return proto.DirectTopic(key) }
