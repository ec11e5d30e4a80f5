package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/voxmesh/voxmesh/internal/app"
	"github.com/voxmesh/voxmesh/internal/config"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
	direct   = flag.Bool("direct", false, "Join as a 1:1 direct call instead of a room")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("voxmesh v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: init requires a peer directory")
			fmt.Fprintln(os.Stderr, "Usage: voxmesh init <peer-directory>")
			os.Exit(1)
		}
		runInit(args[1])

	case "join":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: join requires a peer directory and a room key")
			fmt.Fprintln(os.Stderr, "Usage: voxmesh [-direct] join <peer-directory> <room-key>")
			os.Exit(1)
		}
		runJoin(args[1], args[2], *direct)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", args[0])
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

func runInit(peerDir string) {
	cfgPath := filepath.Join(peerDir, "config.json")
	_, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if created {
		fmt.Printf("created %s\n", cfgPath)
	} else {
		fmt.Printf("config already present at %s\n", cfgPath)
	}
}

func runJoin(peerDir, roomKey string, direct bool) {
	cfgPath := filepath.Join(peerDir, "config.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if created {
		log.Printf("APP: wrote default config to %s", cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, app.Options{
		PeerDir: peerDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
		RoomKey: roomKey,
		Direct:  direct,
	})
	if err != nil {
		log.Fatalf("run: %v", err)
	}
}

func showUsage() {
	fmt.Println(`voxmesh — peer-to-peer mesh voice/video calls over pubsub signaling

Usage:
  voxmesh init <peer-directory>                    Create a default config
  voxmesh [-direct] join <peer-directory> <room>   Join a voice room
  voxmesh -version                                 Show version

Flags:
  -direct   Treat <room> as a 1:1 call key: isolated topic namespace,
            explicit call-end on hangup.
  -h        Show this help

Each peer directory holds that peer's config.json, identity key, and
profile cache. Run two peers on one machine by using two directories.
The local console (default http://127.0.0.1:7710) exposes mute, deafen,
screen share, chat, and hangup while in a call.`)
}
