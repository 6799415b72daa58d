package handler

import (
	"sync"
	"testing"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/events"
	"github.com/permissionlesstech/bitchat-core/pkg/fragment"
	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/meshgraph"
	"github.com/permissionlesstech/bitchat-core/pkg/noisesession"
	"github.com/permissionlesstech/bitchat-core/pkg/peermgr"
	"github.com/permissionlesstech/bitchat-core/pkg/security"
	"github.com/permissionlesstech/bitchat-core/pkg/store"
	"github.com/permissionlesstech/bitchat-core/pkg/transport"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// recordingDelegate captures every pipeline callback on its own channel,
// so a test can block on a specific event instead of racing the
// handler's transport goroutine.
type recordingDelegate struct {
	mu sync.Mutex

	established     chan wire.PeerID
	publicMessages  chan string
	privateMessages chan string
	deliveryAcks    chan string
	readReceipts    chan string
	favorites       chan []byte
	left            chan wire.PeerID
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{
		established:     make(chan wire.PeerID, 8),
		publicMessages:  make(chan string, 8),
		privateMessages: make(chan string, 8),
		deliveryAcks:    make(chan string, 8),
		readReceipts:    make(chan string, 8),
		favorites:       make(chan []byte, 8),
		left:            make(chan wire.PeerID, 8),
	}
}

func (d *recordingDelegate) OnPublicMessage(sender wire.PeerID, nickname, text string, now time.Time) {
	d.publicMessages <- text
}

func (d *recordingDelegate) OnPrivateMessage(sender wire.PeerID, msgID, content string, now time.Time) {
	d.privateMessages <- content
}

func (d *recordingDelegate) OnDeliveryAck(sender wire.PeerID, msgID string) {
	d.deliveryAcks <- msgID
}

func (d *recordingDelegate) OnReadReceipt(sender wire.PeerID, msgID string) {
	d.readReceipts <- msgID
}

func (d *recordingDelegate) OnFavoriteNotification(sender wire.PeerID, relayPub []byte) {
	d.favorites <- relayPub
}

func (d *recordingDelegate) OnSessionEstablished(peer wire.PeerID) {
	d.established <- peer
}

func (d *recordingDelegate) OnPeerLeft(peer wire.PeerID) {
	d.left <- peer
}

// node bundles one simulated participant: its identity and the
// collaborators a real orchestrator would wire into a Handler.
type node struct {
	id       *identity.Identity
	peers    *peermgr.Manager
	sessions *noisesession.Manager
	rate     *security.RateGate
	handler  *Handler
	delegate *recordingDelegate
	mesh     *transport.FakeMesh
}

func newNode(t *testing.T, mesh *transport.FakeMesh) *node {
	t.Helper()

	id, err := identity.LoadOrCreate(identity.NewMemoryKeyStore())
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	peers := peermgr.NewManager()
	sessions := noisesession.NewManager(id.PeerID(), id.NoisePrivateKey())
	rate := security.NewRateGate()
	delegate := newRecordingDelegate()
	bus := events.NewBus()

	h := New(
		id, peers, sessions,
		security.NewDedup(), rate, nil,
		fragment.NewReassembler(), meshgraph.NewGraph(), store.NewCache(),
		bus, delegate, mesh,
	)

	n := &node{
		id: id, peers: peers, sessions: sessions, rate: rate,
		handler: h, delegate: delegate, mesh: mesh,
	}

	mesh.OnPacket(func(pkt []byte, link transport.LinkID) {
		h.HandleInbound(pkt, link, time.Now())
	})
	if err := mesh.Start(); err != nil {
		t.Fatalf("mesh.Start: %v", err)
	}
	t.Cleanup(func() {
		mesh.Stop()
		rate.Close()
	})
	return n
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func buildAndSend(t *testing.T, from *node, pkt *wire.Packet, now time.Time) {
	t.Helper()
	encoded, err := Finalize(from.id, pkt, now)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	from.mesh.Broadcast(encoded)
}

// TestAnnounceHandshakeAndPrivateMessageRoundTrip drives two simulated
// nodes over a FakeMesh link through announce exchange, the three-message
// Noise XX handshake, and an encrypted private message / delivery ack
// round trip (spec §4.2-§4.3, §4.7, §4.9).
func TestAnnounceHandshakeAndPrivateMessageRoundTrip(t *testing.T) {
	meshA, meshB := transport.NewFakeMeshPair(transport.LinkID("link-a"), transport.LinkID("link-b"))
	a := newNode(t, meshA)
	b := newNode(t, meshB)

	now := time.Now()

	announceA, err := BuildAnnounce(a.id, "alice", nil)
	if err != nil {
		t.Fatalf("BuildAnnounce: %v", err)
	}
	buildAndSend(t, a, announceA, now)

	announceB, err := BuildAnnounce(b.id, "bob", nil)
	if err != nil {
		t.Fatalf("BuildAnnounce: %v", err)
	}
	buildAndSend(t, b, announceB, now)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, okA := a.peers.Get(b.id.PeerID())
		_, okB := b.peers.Get(a.id.PeerID())
		if okA && okB {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for mutual announce observation")
		}
		time.Sleep(time.Millisecond)
	}

	recA, _ := a.peers.Get(b.id.PeerID())
	if recA.Nickname != "bob" {
		t.Fatalf("expected alice to learn bob's nickname, got %q", recA.Nickname)
	}

	// Spec §4.3's tie-break rule: the lexicographically smaller peer ID
	// initiates the handshake.
	var initiator, responder *node
	if a.id.PeerID().Less(b.id.PeerID()) {
		initiator, responder = a, b
	} else {
		initiator, responder = b, a
	}

	msg1, err := initiator.sessions.StartHandshake(responder.id.PeerID(), now)
	if err != nil {
		t.Fatalf("StartHandshake: %v", err)
	}
	if msg1 == nil {
		t.Fatalf("expected the tie-break winner to produce an initiation message")
	}
	buildAndSend(t, initiator, BuildNoiseHandshake(responder.id.PeerID(), msg1), now)

	initEstablished := waitFor(t, initiator.delegate.established, "initiator session established")
	if initEstablished != responder.id.PeerID() {
		t.Fatalf("initiator established a session with the wrong peer")
	}
	respEstablished := waitFor(t, responder.delegate.established, "responder session established")
	if respEstablished != initiator.id.PeerID() {
		t.Fatalf("responder established a session with the wrong peer")
	}

	if st, _ := initiator.sessions.Get(responder.id.PeerID()); st.State() != noisesession.Established {
		t.Fatalf("expected initiator session Established, got %v", st.State())
	}
	if st, _ := responder.sessions.Get(initiator.id.PeerID()); st.State() != noisesession.Established {
		t.Fatalf("expected responder session Established, got %v", st.State())
	}

	// Public MESSAGE broadcast.
	buildAndSend(t, initiator, BuildMessage("hello mesh"), now)
	got := waitFor(t, responder.delegate.publicMessages, "public message")
	if got != "hello mesh" {
		t.Fatalf("unexpected public message: %q", got)
	}

	// Encrypted private message, initiator -> responder.
	body, err := BuildPrivateMessage("msg-1", "hi bob")
	if err != nil {
		t.Fatalf("BuildPrivateMessage: %v", err)
	}
	ciphertext, nonce, err := initiator.sessions.Encrypt(responder.id.PeerID(), body)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	buildAndSend(t, initiator, BuildNoiseEncrypted(responder.id.PeerID(), nonce, ciphertext), now)

	content := waitFor(t, responder.delegate.privateMessages, "private message")
	if content != "hi bob" {
		t.Fatalf("unexpected private message content: %q", content)
	}

	// Delivery ack, responder -> initiator.
	ackBody := BuildDeliveryAck("msg-1")
	ackCiphertext, ackNonce, err := responder.sessions.Encrypt(initiator.id.PeerID(), ackBody)
	if err != nil {
		t.Fatalf("Encrypt (ack): %v", err)
	}
	buildAndSend(t, responder, BuildNoiseEncrypted(initiator.id.PeerID(), ackNonce, ackCiphertext), now)

	ackID := waitFor(t, initiator.delegate.deliveryAcks, "delivery ack")
	if ackID != "msg-1" {
		t.Fatalf("unexpected delivery ack id: %q", ackID)
	}
}

// TestLeaveRemovesSession checks that a validated LEAVE tears down the
// sender's noise session and fires OnPeerLeft (spec §4.7).
func TestLeaveRemovesSession(t *testing.T) {
	meshA, meshB := transport.NewFakeMeshPair(transport.LinkID("link-a"), transport.LinkID("link-b"))
	a := newNode(t, meshA)
	b := newNode(t, meshB)

	now := time.Now()

	announceA, _ := BuildAnnounce(a.id, "alice", nil)
	buildAndSend(t, a, announceA, now)
	announceB, _ := BuildAnnounce(b.id, "bob", nil)
	buildAndSend(t, b, announceB, now)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, okA := a.peers.Get(b.id.PeerID())
		_, okB := b.peers.Get(a.id.PeerID())
		if okA && okB {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for mutual announce observation")
		}
		time.Sleep(time.Millisecond)
	}

	var initiator, responder *node
	if a.id.PeerID().Less(b.id.PeerID()) {
		initiator, responder = a, b
	} else {
		initiator, responder = b, a
	}
	msg1, err := initiator.sessions.StartHandshake(responder.id.PeerID(), now)
	if err != nil || msg1 == nil {
		t.Fatalf("StartHandshake: msg=%v err=%v", msg1, err)
	}
	buildAndSend(t, initiator, BuildNoiseHandshake(responder.id.PeerID(), msg1), now)
	waitFor(t, initiator.delegate.established, "initiator session established")
	waitFor(t, responder.delegate.established, "responder session established")

	buildAndSend(t, initiator, BuildLeave(), now)

	left := waitFor(t, responder.delegate.left, "peer left")
	if left != initiator.id.PeerID() {
		t.Fatalf("unexpected OnPeerLeft peer: %v", left)
	}
	if _, ok := responder.sessions.Get(initiator.id.PeerID()); ok {
		t.Fatalf("expected responder to drop the session after LEAVE")
	}
}
