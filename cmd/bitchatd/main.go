// Command bitchatd runs a bitchat-core node headlessly: no mobile shell,
// no BLE radio, no Nostr relay client attached — those are external
// collaborators a real deployment supplies through pkg/transport's
// interfaces (spec §1). Until one is wired in, bitchatd runs against a
// local loopback mesh/overlay pair, which is enough to exercise the full
// node lifecycle (handshakes, announces, routing, panic reset) for
// integration testing. Grounded on the teacher's main.go (log-level
// environment handling, signal-driven shutdown) and daemon_linux.go
// (foreground-process signal set), trimmed of their daemonize-via-re-exec
// step: this core has no privileged interface to set up before dropping
// privileges.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/permissionlesstech/bitchat-core/pkg/config"
	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/logging"
	"github.com/permissionlesstech/bitchat-core/pkg/transport"

	bitchat "github.com/permissionlesstech/bitchat-core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bitchatd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDir  = pflag.StringP("data-dir", "d", defaultDataDir(), "directory for identity and favorites state")
		nickname = pflag.StringP("nickname", "n", "anonymous", "nickname announced to other peers")
		logLevel = pflag.StringP("log-level", "l", "info", "log level: silent, error, info, debug")
	)
	pflag.Parse()

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return err
	}
	log := logging.New(level, "bitchatd")

	if err := os.MkdirAll(*dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	keyStore := identity.NewFileKeyStore(filepath.Join(*dataDir, "identity.json"))
	id, err := identity.LoadOrCreate(keyStore)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mesh, _ := transport.NewFakeMeshPair(transport.LinkID("local"), transport.LinkID("loopback"))
	pub := id.NoisePublicKey()
	overlay, _ := transport.NewFakeOverlayPair(pub[:], nil)

	node, err := bitchat.New(bitchat.Options{
		Identity:      id,
		Config:        cfg,
		Nickname:      *nickname,
		FavoritesPath: filepath.Join(*dataDir, "favorites.json"),
		Mesh:          mesh,
		Overlay:       overlay,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	events, cancel := node.SubscribeEvents()
	defer cancel()
	go func() {
		for ev := range events {
			log.Info("event", "kind", ev.Kind, "peer", ev.PeerID, "text", ev.Text)
		}
	}()

	if err := node.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	log.Info("started", "peer_id", id.PeerID().String(), "nickname", *nickname)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	return node.Close()
}

func parseLogLevel(s string) (logging.Level, error) {
	switch s {
	case "silent":
		return logging.LevelSilent, nil
	case "error":
		return logging.LevelError, nil
	case "info":
		return logging.LevelInfo, nil
	case "debug":
		return logging.LevelDebug, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".bitchat")
	}
	return ".bitchat"
}
