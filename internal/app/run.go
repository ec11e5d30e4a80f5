// Package app wires a full voxmesh peer together: identity, signaling
// bus, media, call, chat, storage, and the local console.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voxmesh/voxmesh/internal/call"
	"github.com/voxmesh/voxmesh/internal/chat"
	"github.com/voxmesh/voxmesh/internal/config"
	"github.com/voxmesh/voxmesh/internal/console"
	"github.com/voxmesh/voxmesh/internal/identity"
	"github.com/voxmesh/voxmesh/internal/media"
	"github.com/voxmesh/voxmesh/internal/proto"
	"github.com/voxmesh/voxmesh/internal/signal"
	"github.com/voxmesh/voxmesh/internal/state"
	"github.com/voxmesh/voxmesh/internal/storage"
	"github.com/voxmesh/voxmesh/internal/util"
)

type Options struct {
	PeerDir string
	CfgPath string
	Cfg     config.Config
	RoomKey string

	// Direct selects 1:1 call semantics: an isolated topic namespace and
	// an explicit call-end on hangup.
	Direct bool
}

// Run joins the room and blocks until the call ends or ctx is canceled.
func Run(ctx context.Context, opt Options) error {
	cfg := opt.Cfg
	logBanner(opt)

	keyFile := util.ResolvePath(opt.PeerDir, cfg.Identity.KeyFile)
	key, created, err := identity.LoadOrCreateKey(keyFile)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if created {
		log.Printf("APP: new identity written to %s", keyFile)
	}
	selfID, err := identity.PeerID(key)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	db, err := storage.Open(opt.PeerDir)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	bus, err := signal.NewBus(ctx, signal.Config{
		Key:        key,
		ListenPort: cfg.P2P.ListenPort,
		MdnsTag:    cfg.P2P.MdnsTag,
	})
	if err != nil {
		return err
	}
	defer bus.Close()

	var source media.CaptureSource
	if cfg.Media.SyntheticCapture {
		source = media.NewSyntheticSource()
	} else {
		if source, err = media.NewCaptureSource(); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	api, err := media.BuildAPI(source)
	if err != nil {
		return err
	}
	ctrl := media.NewController(source, media.NewSinkSet(nil))

	topic := proto.RoomTopic(opt.RoomKey)
	mode := call.ModeRoom
	if opt.Direct {
		topic = proto.DirectTopic(opt.RoomKey)
		mode = call.ModeDirect
	}
	room, err := bus.Join(ctx, topic)
	if err != nil {
		return err
	}

	self := identity.SelfParticipant(selfID, cfg.Profile.Label, cfg.Profile.Avatar)
	c := call.New(room, call.Options{
		Mode:              mode,
		Self:              self,
		Media:             ctrl,
		API:               api,
		STUNServers:       cfg.Media.STUNServers,
		HeartbeatInterval: time.Duration(cfg.Presence.HeartbeatSec) * time.Second,
		PresenceTTL:       time.Duration(cfg.Presence.TTLSec) * time.Second,
	})
	chatMgr := chat.New(room, self.Label, 0)

	// Every joined or updated participant refreshes the profile cache, so
	// peers keep their labels even when seen offline later.
	rosterCh := c.Roster().Subscribe()
	go func() {
		for evt := range rosterCh {
			if evt.Type == state.EventLeft {
				continue
			}
			p := evt.Participant
			err := db.UpsertProfile(storage.Profile{
				PeerID:    p.ID,
				Label:     p.Label,
				AvatarRef: p.AvatarRef,
				LastRoom:  opt.RoomKey,
			})
			if err != nil {
				log.Printf("APP: cache profile: %v", err)
			}
		}
	}()

	if cfg.Console.HTTPAddr != "" {
		cons, err := console.Start(cfg.Console.HTTPAddr, console.Deps{
			Call:    c,
			Chat:    chatMgr,
			Media:   ctrl,
			DB:      db,
			RoomKey: opt.RoomKey,
		})
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		defer cons.Close()
	}

	stopWatch := watchConfig(opt.CfgPath, c, chatMgr)
	defer stopWatch()

	if err := c.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		c.Hangup()
		<-c.Done()
	case <-c.Done():
	}
	log.Printf("APP: shut down")
	return nil
}

func logBanner(opt Options) {
	kind := "room"
	if opt.Direct {
		kind = "direct call"
	}
	log.Printf("APP: voxmesh starting")
	log.Printf("APP:   peer dir: %s", opt.PeerDir)
	log.Printf("APP:   %s: %s", kind, opt.RoomKey)
}
