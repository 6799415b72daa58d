// Package bitchat implements the Node orchestrator: the composition root
// that wires every subsystem package together and exposes the control
// surface a host application (a mobile shell or cmd/bitchatd) drives
// (spec §6.5). Grounded on the teacher's device.go composition (resource
// groups guarded by a device-wide state, a single NewDevice constructor
// that spawns the periodic goroutines) and daemon.go/main.go's
// startup/shutdown sequencing.
package bitchat

import (
	"sync"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/config"
	"github.com/permissionlesstech/bitchat-core/pkg/events"
	"github.com/permissionlesstech/bitchat-core/pkg/favorites"
	"github.com/permissionlesstech/bitchat-core/pkg/fragment"
	"github.com/permissionlesstech/bitchat-core/pkg/handler"
	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/logging"
	"github.com/permissionlesstech/bitchat-core/pkg/meshgraph"
	"github.com/permissionlesstech/bitchat-core/pkg/noisesession"
	"github.com/permissionlesstech/bitchat-core/pkg/peermgr"
	"github.com/permissionlesstech/bitchat-core/pkg/router"
	"github.com/permissionlesstech/bitchat-core/pkg/security"
	"github.com/permissionlesstech/bitchat-core/pkg/store"
	"github.com/permissionlesstech/bitchat-core/pkg/transport"
)

// Periodic housekeeping intervals (spec §5 Timers).
const (
	announceInterval          = 30 * time.Second
	graphSweepInterval        = 60 * time.Second
	fragmentSweepInterval     = 10 * time.Second
	rekeyCheckInterval        = 60 * time.Second
	storeForwardSweepInterval = 60 * time.Second
	outboxSweepInterval       = 60 * time.Second
)

// cookieGateLoadFactor is the fraction of MaxConnOverall peer records at
// which the handshake-flood cookie gate starts requiring proof-of-recency.
const cookieGateLoadFactor = 0.9

// Node is the composition root: every package under pkg/ is a
// collaborator it owns and drives. A host embeds one Node per local
// identity and talks to it exclusively through the methods in control.go.
type Node struct {
	id  *identity.Identity
	cfg config.Config
	log *logging.Logger

	peers     *peermgr.Manager
	sessions  *noisesession.Manager
	dedup     *security.Dedup
	rate      *security.RateGate
	cookie    *security.CookieGate
	frag      *fragment.Reassembler
	graph     *meshgraph.Graph
	cache     *store.Cache
	bus       *events.Bus
	favorites *favorites.Store
	handler   *handler.Handler
	router    *router.Router

	mesh    transport.MeshTransport
	overlay transport.OverlayTransport

	mu       sync.RWMutex
	nickname string
	running  bool

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Options bundles New's collaborators so adding one doesn't ripple
// through every call site.
type Options struct {
	Identity      *identity.Identity
	Config        config.Config
	Nickname      string
	FavoritesPath string
	Mesh          transport.MeshTransport
	Overlay       transport.OverlayTransport // may be nil: overlay-less deployments only reach direct mesh peers
	Logger        *logging.Logger
}

// New wires every collaborator but starts nothing; call Start to spin up
// transports and timers.
func New(opts Options) (*Node, error) {
	log := opts.Logger
	if log == nil {
		log = logging.New(logging.LevelInfo, "")
	}

	favStore, err := favorites.NewStore(opts.FavoritesPath)
	if err != nil {
		return nil, err
	}

	n := &Node{
		id:        opts.Identity,
		cfg:       opts.Config,
		log:       log,
		peers:     peermgr.NewManager(),
		sessions:  noisesession.NewManager(opts.Identity.PeerID(), opts.Identity.NoisePrivateKey()),
		dedup:     security.NewDedup(),
		rate:      security.NewRateGate(),
		frag:      fragment.NewReassembler(),
		graph:     meshgraph.NewGraph(),
		cache:     store.NewCache(),
		bus:       events.NewBus(),
		favorites: favStore,
		mesh:      opts.Mesh,
		overlay:   opts.Overlay,
		nickname:  opts.Nickname,
		stopCh:    make(chan struct{}),
	}
	n.cookie = security.NewCookieGate(n.underLoad)

	r := router.New(n.peers, n.sessions, n.favorites, nil, n.overlay, n.bus)
	h := handler.New(n.id, n.peers, n.sessions, n.dedup, n.rate, n.cookie, n.frag, n.graph, n.cache, n.bus, r, n.mesh)
	r.SetHandler(h)
	h.SetRelayEnabled(n.cfg.PacketRelayEnabled)

	n.router = r
	n.handler = h
	return n, nil
}

// underLoad feeds CookieGate's admission check: once the live peer table
// approaches the configured ceiling, fresh handshakes must prove recency
// (spec §4.6's anti-DoS posture generalized from the teacher's MAC1/MAC2
// gate to this core's peer-count signal).
func (n *Node) underLoad() bool {
	if n.cfg.MaxConnOverall <= 0 {
		return false
	}
	return float64(n.peers.Len()) >= cookieGateLoadFactor*float64(n.cfg.MaxConnOverall)
}

// Start brings the mesh transport up, subscribes the overlay transport
// (if any) to this node's own Noise public key, and launches the
// periodic housekeeping goroutines. Mirrors the teacher's
// Up()/deviceUpdateState() transition: idempotent, safe to call once.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = true
	n.stopCh = make(chan struct{})
	n.closeOnce = sync.Once{}
	n.mu.Unlock()

	n.mesh.OnPacket(func(pkt []byte, link transport.LinkID) {
		n.handler.HandleInbound(pkt, link, time.Now())
	})
	n.mesh.OnLinkUp(func(link transport.LinkID) {
		n.sendBroadcastAnnounce(time.Now())
	})
	if err := n.mesh.Start(); err != nil {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		return err
	}

	if n.overlay != nil {
		pub := n.id.NoisePublicKey()
		n.overlay.Subscribe(pub[:])
		n.router.NotifyOverlayReady()
	}

	n.sendBroadcastAnnounce(time.Now())

	n.startTimers()
	return nil
}

// Stop tears down transports and housekeeping goroutines but leaves
// in-memory state (peers, sessions, outbox) intact, mirroring the
// teacher's Down(): a node can Start again without losing identity or
// conversation history. Safe to call more than once.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	n.mu.Unlock()

	n.closeOnce.Do(func() {
		close(n.stopCh)
	})
	n.wg.Wait()

	if n.overlay != nil {
		pub := n.id.NoisePublicKey()
		n.overlay.Unsubscribe(pub[:])
	}
	return n.mesh.Stop()
}

// Wait blocks until Stop has fully drained the housekeeping goroutines.
func (n *Node) Wait() {
	n.wg.Wait()
}

// Close releases resources a restart would otherwise leak (the rate
// gate's GC goroutine). Call once the Node is permanently discarded.
func (n *Node) Close() error {
	if err := n.Stop(); err != nil {
		return err
	}
	n.rate.Close()
	return nil
}
