package bitchat

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/config"
	"github.com/permissionlesstech/bitchat-core/pkg/events"
	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/logging"
	"github.com/permissionlesstech/bitchat-core/pkg/transport"
)

// newTestNode builds a Node over the given transport pair and a temp-dir
// favorites store, following the same per-side construction router_test.go
// uses for its own simulated participants.
func newTestNode(t *testing.T, nickname string, mesh transport.MeshTransport, overlay transport.OverlayTransport) *Node {
	t.Helper()

	id, err := identity.LoadOrCreate(identity.NewMemoryKeyStore())
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}

	cfg := config.Config{
		MaxConnOverall:     config.DefaultMaxConnOverall,
		MaxConnServer:      config.DefaultMaxConnServer,
		MaxConnClient:      config.DefaultMaxConnClient,
		PacketRelayEnabled: true,
	}

	n, err := New(Options{
		Identity:      id,
		Config:        cfg,
		Nickname:      nickname,
		FavoritesPath: filepath.Join(t.TempDir(), "favorites.json"),
		Mesh:          mesh,
		Overlay:       overlay,
		Logger:        logging.New(logging.LevelSilent, nickname),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

func waitForNode(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for {
		if cond() {
			return
		}
		if time.Now().After(end) {
			t.Fatalf("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartStopIsIdempotentAndReversible(t *testing.T) {
	meshA, meshB := transport.NewFakeMeshPair(transport.LinkID("a"), transport.LinkID("b"))
	a := newTestNode(t, "alice", meshA, nil)
	_ = newTestNode(t, "bob", meshB, nil)

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestNodesAnnounceAndLearnEachOther(t *testing.T) {
	meshA, meshB := transport.NewFakeMeshPair(transport.LinkID("a"), transport.LinkID("b"))
	a := newTestNode(t, "alice", meshA, nil)
	b := newTestNode(t, "bob", meshB, nil)

	if err := a.Start(); err != nil {
		t.Fatalf("a.Start: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("b.Start: %v", err)
	}

	waitForNode(t, 2*time.Second, func() bool {
		_, okA := a.peers.Get(b.id.PeerID())
		_, okB := b.peers.Get(a.id.PeerID())
		return okA && okB
	})
}

func TestSendPrivateEstablishesSessionAndDelivers(t *testing.T) {
	meshA, meshB := transport.NewFakeMeshPair(transport.LinkID("a"), transport.LinkID("b"))
	a := newTestNode(t, "alice", meshA, nil)
	b := newTestNode(t, "bob", meshB, nil)

	if err := a.Start(); err != nil {
		t.Fatalf("a.Start: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("b.Start: %v", err)
	}

	waitForNode(t, 2*time.Second, func() bool {
		_, okA := a.peers.Get(b.id.PeerID())
		_, okB := b.peers.Get(a.id.PeerID())
		return okA && okB
	})

	bEvents, cancel := b.SubscribeEvents()
	defer cancel()

	target := b.id.PeerID().String()
	msgID, err := a.SendPrivate(target, "hello bob")
	if err != nil {
		t.Fatalf("SendPrivate: %v", err)
	}

	waitForNode(t, 2*time.Second, func() bool {
		_, ok := a.sessions.Get(b.id.PeerID())
		return ok
	})

	select {
	case ev := <-bEvents:
		if ev.Kind != events.KindPrivateMessage {
			t.Fatalf("expected a private message event, got %v", ev.Kind)
		}
		if ev.Text != "hello bob" {
			t.Fatalf("expected message text to survive the round trip, got %q", ev.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bob to receive the private message")
	}

	if _, ok := a.DeliveryStatus(msgID); !ok {
		t.Fatalf("expected a delivery status entry for %s", msgID)
	}
}

func TestToggleFavoriteRecordsLocalPreference(t *testing.T) {
	meshA, meshB := transport.NewFakeMeshPair(transport.LinkID("a"), transport.LinkID("b"))
	a := newTestNode(t, "alice", meshA, nil)
	_ = newTestNode(t, "bob", meshB, nil)

	pub := a.id.NoisePublicKey()
	peerHex := pub.Hex()

	rec, err := a.ToggleFavorite(peerHex, true, nil)
	if err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if !rec.WeFavored {
		t.Fatalf("expected WeFavored to be set")
	}

	rec, err = a.ToggleFavorite(peerHex, false, nil)
	if err != nil {
		t.Fatalf("ToggleFavorite unset: %v", err)
	}
	if rec.WeFavored {
		t.Fatalf("expected WeFavored to be cleared")
	}
}

func TestPanicResetWipesSessionsAndPeers(t *testing.T) {
	meshA, meshB := transport.NewFakeMeshPair(transport.LinkID("a"), transport.LinkID("b"))
	a := newTestNode(t, "alice", meshA, nil)
	b := newTestNode(t, "bob", meshB, nil)

	if err := a.Start(); err != nil {
		t.Fatalf("a.Start: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("b.Start: %v", err)
	}

	waitForNode(t, 2*time.Second, func() bool {
		_, okA := a.peers.Get(b.id.PeerID())
		_, okB := b.peers.Get(a.id.PeerID())
		return okA && okB
	})

	oldPeerID := a.id.PeerID()
	resetEvents, cancel := a.SubscribeEvents()
	defer cancel()

	if err := a.PanicReset(); err != nil {
		t.Fatalf("PanicReset: %v", err)
	}

	if a.id.PeerID() == oldPeerID {
		t.Fatalf("expected a fresh peer ID after panic reset")
	}
	if a.peers.Len() != 0 {
		t.Fatalf("expected the peer table to be empty after panic reset, got %d", a.peers.Len())
	}

	select {
	case ev := <-resetEvents:
		if ev.Kind != events.KindPanicReset {
			t.Fatalf("expected a panic reset event, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the panic reset event")
	}
}

func TestDeliveryStatusUnknownForUnknownMessage(t *testing.T) {
	meshA, meshB := transport.NewFakeMeshPair(transport.LinkID("a"), transport.LinkID("b"))
	a := newTestNode(t, "alice", meshA, nil)
	_ = newTestNode(t, "bob", meshB, nil)

	if _, ok := a.DeliveryStatus("never-sent"); ok {
		t.Fatalf("expected no delivery status for an unsubmitted message ID")
	}
}
