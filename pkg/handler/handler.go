package handler

import (
	"crypto/ed25519"
	"sync"
	"sync/atomic"
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

// Delegate receives decoded application-level events from the ingress
// pipeline, so the router and UI feed don't need to know about wire
// framing (spec §4.7's dispatch step).
type Delegate interface {
	OnPublicMessage(sender wire.PeerID, nickname, text string, now time.Time)
	OnPrivateMessage(sender wire.PeerID, msgID, content string, now time.Time)
	OnDeliveryAck(sender wire.PeerID, msgID string)
	OnReadReceipt(sender wire.PeerID, msgID string)
	OnFavoriteNotification(sender wire.PeerID, relayPub []byte)
	OnSessionEstablished(peer wire.PeerID)
	OnPeerLeft(peer wire.PeerID)
}

// Handler is the Message Handler + Packet Processor: it owns the ingress
// pipeline (decode, security validate, dispatch, relay plan) and the
// outbound packet construction helpers in build.go (spec §4.7).
// Grounded on the teacher's receive.go: a single per-packet pipeline
// function fed by the transport's callback, dispatching into per-type
// handling without its own goroutine (the transport callback already runs
// on its own goroutine per spec §5's "ingress from the same inbound link
// is serialized").
type Handler struct {
	id       *identity.Identity
	peers    *peermgr.Manager
	sessions *noisesession.Manager
	dedup    *security.Dedup
	rate     *security.RateGate
	cookie   *security.CookieGate
	frag     *fragment.Reassembler
	graph    *meshgraph.Graph
	cache    *store.Cache
	bus      *events.Bus
	delegate Delegate
	mesh     transport.MeshTransport

	mu       sync.Mutex
	linkPeer map[transport.LinkID]wire.PeerID
	peerLink map[wire.PeerID]transport.LinkID

	relayEnabled atomic.Bool
}

// New builds a Handler wired to its collaborators. mesh is used to send
// replies (handshake responses, peer-directed announces, relayed
// packets); it may be swapped for a fake in tests.
func New(
	id *identity.Identity,
	peers *peermgr.Manager,
	sessions *noisesession.Manager,
	dedup *security.Dedup,
	rate *security.RateGate,
	cookie *security.CookieGate,
	frag *fragment.Reassembler,
	graph *meshgraph.Graph,
	cache *store.Cache,
	bus *events.Bus,
	delegate Delegate,
	mesh transport.MeshTransport,
) *Handler {
	h := &Handler{
		id:       id,
		peers:    peers,
		sessions: sessions,
		dedup:    dedup,
		rate:     rate,
		cookie:   cookie,
		frag:     frag,
		graph:    graph,
		cache:    cache,
		bus:      bus,
		delegate: delegate,
		mesh:     mesh,
		linkPeer: make(map[transport.LinkID]wire.PeerID),
		peerLink: make(map[wire.PeerID]transport.LinkID),
	}
	h.relayEnabled.Store(true)
	return h
}

// SetRelayEnabled toggles whether this node forwards packets addressed to
// other peers (spec §6.5's PACKET_RELAY_ENABLED config toggle). Disabling
// it still allows packets addressed to or originated by this node to be
// processed; only the relay-onward step in relay() is skipped.
func (h *Handler) SetRelayEnabled(enabled bool) {
	h.relayEnabled.Store(enabled)
}

func (h *Handler) bindLink(link transport.LinkID, peer wire.PeerID) {
	h.mu.Lock()
	h.linkPeer[link] = peer
	h.peerLink[peer] = link
	h.mu.Unlock()
}

func (h *Handler) peerForLink(link transport.LinkID) (wire.PeerID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.linkPeer[link]
	return p, ok
}

func (h *Handler) linkForPeer(peer wire.PeerID) (transport.LinkID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.peerLink[peer]
	return l, ok
}

// HandleInbound runs one packet received on link through the full
// ingress pipeline (spec §4.7).
func (h *Handler) HandleInbound(raw []byte, link transport.LinkID, now time.Time) {
	pkt, err := wire.Decode(raw)
	if err != nil {
		h.bus.Publish(events.Event{Kind: events.KindPacketDropped, Err: err})
		return
	}
	h.processDecoded(pkt, link, now)
}

func (h *Handler) processDecoded(pkt *wire.Packet, link transport.LinkID, now time.Time) {
	if !h.validateSecurity(pkt, now) {
		return
	}

	if linkPeer, ok := h.peerForLink(link); ok {
		h.peers.SetDirect(linkPeer, true)
	}
	h.peers.UpdateLastSeen(pkt.SenderID, now)

	if pkt.Type.IsFragment() {
		h.handleFragment(pkt, link, now)
	} else {
		h.dispatch(pkt, link, now)
	}

	h.relay(pkt, link, now)
}

// validateSecurity implements spec §4.6's signature, replay, rate and
// dedup checks. It returns false if the packet must be dropped.
func (h *Handler) validateSecurity(pkt *wire.Packet, now time.Time) bool {
	if !security.WithinReplayWindow(pkt.TimestampMS, now) {
		h.bus.Publish(events.Event{Kind: events.KindPacketDropped, PeerID: pkt.SenderID.String()})
		return false
	}
	if !h.rate.Allow(pkt.SenderID, now) {
		return false
	}
	if !h.verifySignature(pkt) {
		h.bus.Publish(events.Event{Kind: events.KindPacketDropped, PeerID: pkt.SenderID.String(), Err: ErrSignatureRequired})
		return false
	}

	canonical, err := wire.CanonicalForSigning(pkt)
	if err != nil {
		return false
	}
	if h.dedup.Seen(security.KeyForBytes(canonical), now) {
		return false
	}
	return true
}

func (h *Handler) verifySignature(pkt *wire.Packet) bool {
	if !pkt.HasSignature() {
		return false
	}
	canonical, err := wire.CanonicalForSigning(pkt)
	if err != nil {
		return false
	}

	if rec, ok := h.peers.Get(pkt.SenderID); ok && len(rec.SigningPub) > 0 {
		return identity.Verify(ed25519.PublicKey(rec.SigningPub), canonical, pkt.Signature[:])
	}

	if pkt.Type != wire.MessageTypeAnnounce {
		return false
	}
	payload, err := payloadBytes(pkt)
	if err != nil {
		return false
	}
	tlvs, err := wire.DecodeTLVs(payload)
	if err != nil {
		return false
	}
	signingTLV, ok := wire.FindTLV(tlvs, uint8(wire.TLVSigningPublicKey))
	if !ok {
		return false
	}
	return identity.Verify(ed25519.PublicKey(signingTLV.Value), canonical, pkt.Signature[:])
}

func (h *Handler) handleFragment(pkt *wire.Packet, link transport.LinkID, now time.Time) {
	f, ok := fragment.DecodeFragment(pkt.Payload)
	if !ok {
		return
	}
	body, originalType, complete, err := h.frag.Feed(f, now)
	if err != nil || !complete {
		return
	}
	inner, err := wire.Decode(body)
	if err != nil {
		return
	}
	if inner.Type != originalType {
		return
	}
	if !h.validateSecurity(inner, now) {
		return
	}
	h.dispatch(inner, link, now)
}

func (h *Handler) dispatch(pkt *wire.Packet, link transport.LinkID, now time.Time) {
	switch pkt.Type {
	case wire.MessageTypeAnnounce:
		h.handleAnnounce(pkt, link, now)
	case wire.MessageTypeMessage:
		h.handleMessage(pkt, now)
	case wire.MessageTypeLeave:
		h.handleLeave(pkt)
	case wire.MessageTypeNoiseHandshake:
		h.handleNoiseHandshake(pkt, now)
	case wire.MessageTypeNoiseEncrypted:
		h.handleNoiseEncrypted(pkt, now)
	}
}

// payloadBytes returns pkt.Payload in its original, uncompressed form,
// decompressing it first if IS_COMPRESSED is set (spec §4.1: "decode
// triggers decompression before parsing TLVs or payloads"). It never
// mutates pkt itself, since relay() still needs to forward the packet
// exactly as received.
func payloadBytes(pkt *wire.Packet) ([]byte, error) {
	if !pkt.Flags.Has(wire.FlagIsCompressed) {
		return pkt.Payload, nil
	}
	return wire.Decompress(pkt.Payload)
}

func (h *Handler) handleAnnounce(pkt *wire.Packet, link transport.LinkID, now time.Time) {
	payload, err := payloadBytes(pkt)
	if err != nil {
		return
	}
	tlvs, err := wire.DecodeTLVs(payload)
	if err != nil {
		return
	}
	var nickname string
	var noisePub identity.NoisePublicKey
	var signingPub []byte
	var neighbors []wire.PeerID

	if t, ok := wire.FindTLV(tlvs, uint8(wire.TLVNickname)); ok {
		nickname = string(t.Value)
	}
	if t, ok := wire.FindTLV(tlvs, uint8(wire.TLVNoisePublicKey)); ok && len(t.Value) == identity.NoiseKeySize {
		copy(noisePub[:], t.Value)
	}
	if t, ok := wire.FindTLV(tlvs, uint8(wire.TLVSigningPublicKey)); ok {
		signingPub = append([]byte(nil), t.Value...)
	}
	if t, ok := wire.FindTLV(tlvs, uint8(wire.TLVGossip)); ok {
		neighbors = wire.DecodeGossipTLV(t.Value)
	}

	h.bindLink(link, pkt.SenderID)
	h.peers.ObserveAnnounce(pkt.SenderID, nickname, noisePub, signingPub, now)
	if len(neighbors) > 0 {
		h.graph.ObserveGossip(pkt.SenderID, neighbors, now)
	}
	h.bus.Publish(events.Event{Kind: events.KindPeerJoined, PeerID: pkt.SenderID.String(), Text: nickname})

	if !h.peers.HasAnnouncedTo(pkt.SenderID) {
		reply, err := BuildAnnounce(h.id, nickname, h.peers.DirectPeers())
		if err == nil {
			if encoded, err := Finalize(h.id, reply, now); err == nil {
				h.mesh.SendTo(link, encoded)
				h.peers.MarkAnnouncedTo(pkt.SenderID, now)
			}
		}
	}
}

func (h *Handler) handleMessage(pkt *wire.Packet, now time.Time) {
	payload, err := payloadBytes(pkt)
	if err != nil {
		return
	}
	nickname := ""
	if rec, ok := h.peers.Get(pkt.SenderID); ok {
		nickname = rec.Nickname
	}
	h.delegate.OnPublicMessage(pkt.SenderID, nickname, string(payload), now)
	h.bus.Publish(events.Event{Kind: events.KindPublicMessage, PeerID: pkt.SenderID.String(), Text: string(payload)})
}

func (h *Handler) handleLeave(pkt *wire.Packet) {
	h.sessions.Remove(pkt.SenderID)
	h.delegate.OnPeerLeft(pkt.SenderID)
	h.bus.Publish(events.Event{Kind: events.KindPeerLeft, PeerID: pkt.SenderID.String()})
}

// handleNoiseHandshake drives one step of the three-message XX exchange
// (spec §4.3). Which step an inbound NOISE_HANDSHAKE packet represents is
// determined by the session's state just before this packet arrived:
// no session yet means this is the initiator's first message; Initiator
// means this is the responder's second message; Responder means this is
// the initiator's final message.
func (h *Handler) handleNoiseHandshake(pkt *wire.Packet, now time.Time) {
	peer := pkt.SenderID
	existing, hadSession := h.sessions.Get(peer)

	if !hadSession {
		if h.cookie != nil && !h.cookie.Admit(peer, nil, now) {
			h.bus.Publish(events.Event{Kind: events.KindPacketDropped, PeerID: peer.String()})
			return
		}
		if err := h.sessions.HandleHandshakeInitiation(peer, pkt.Payload, now); err != nil {
			return
		}
		out, err := h.sessions.Advance(peer, nil, now)
		if err == nil && out != nil {
			h.sendHandshake(peer, out, now)
		}
		return
	}

	switch existing.State() {
	case noisesession.HandshakingInitiator:
		out, err := h.sessions.Advance(peer, pkt.Payload, now)
		if err != nil {
			return
		}
		if out != nil {
			h.sendHandshake(peer, out, now)
		}
		h.onEstablished(peer, now)
	case noisesession.HandshakingResponder:
		if err := h.sessions.FinishResponder(peer, pkt.Payload, now); err != nil {
			return
		}
		h.onEstablished(peer, now)
	}
}

func (h *Handler) sendHandshake(peer wire.PeerID, msg []byte, now time.Time) {
	pkt := BuildNoiseHandshake(peer, msg)
	encoded, err := Finalize(h.id, pkt, now)
	if err != nil {
		return
	}
	if link, ok := h.linkForPeer(peer); ok {
		h.mesh.SendTo(link, encoded)
		return
	}
	h.mesh.Broadcast(encoded)
}

// StartHandshake lazily begins a Noise session with peer if the tie-break
// rule says this node should initiate and no handshake is already in
// flight (spec §4.2: "a Noise session is created lazily on first private
// send"). Exported so pkg/router or the node orchestrator can trigger it
// from an outbound send that finds no Established session yet; a no-op if
// the local side loses the tie-break or a session already exists.
func (h *Handler) StartHandshake(peer wire.PeerID, now time.Time) error {
	msg, err := h.sessions.StartHandshake(peer, now)
	if err != nil || msg == nil {
		return err
	}
	h.sendHandshake(peer, msg, now)
	return nil
}

func (h *Handler) onEstablished(peer wire.PeerID, now time.Time) {
	h.bus.Publish(events.Event{Kind: events.KindSessionState, PeerID: peer.String(), Text: "established"})
	h.delegate.OnSessionEstablished(peer)
	h.drainStoreForward(peer, now)
}

// drainStoreForward implements spec §4.9's "on session establishment with
// that recipient, drain in FIFO order" behavior. Envelopes hold the
// plaintext {noise_payload_type, body} built at insertion time; they are
// encrypted against the now-live session just before sending, since no
// session (and therefore no transport cipher) exists while the recipient
// is offline.
func (h *Handler) drainStoreForward(peer wire.PeerID, now time.Time) {
	rec, ok := h.peers.Get(peer)
	if !ok || rec.Fingerprint == "" {
		return
	}
	h.cache.Drain(rec.Fingerprint, now, func(env store.Envelope) error {
		return h.SendEncrypted(peer, env.Packet, now)
	})
}

// SendEncrypted encrypts plaintext against peer's Established session and
// sends it over the mesh link bound to that peer. Exported for
// pkg/router, which drives outbound private sends but has no business
// reaching into this handler's link bindings itself.
func (h *Handler) SendEncrypted(peer wire.PeerID, plaintext []byte, now time.Time) error {
	ciphertext, nonce, err := h.sessions.Encrypt(peer, plaintext)
	if err != nil {
		return err
	}
	pkt := BuildNoiseEncrypted(peer, nonce, ciphertext)
	encoded, err := Finalize(h.id, pkt, now)
	if err != nil {
		return err
	}
	link, ok := h.linkForPeer(peer)
	if !ok {
		return ErrLinkUnavailable
	}
	if !h.mesh.SendTo(link, encoded) {
		return ErrLinkUnavailable
	}
	return nil
}

func (h *Handler) handleNoiseEncrypted(pkt *wire.Packet, now time.Time) {
	peer := pkt.SenderID
	nonce, ciphertext, err := DecodeNonceCiphertext(pkt.Payload)
	if err != nil {
		return
	}
	plaintext, err := h.sessions.Decrypt(peer, ciphertext, nonce)
	if err != nil {
		return
	}
	typ, body, err := DecodeNoisePayload(plaintext)
	if err != nil {
		return
	}
	switch typ {
	case wire.NoisePayloadPrivateMessage:
		msgID, content, err := DecodePrivateMessageTLV(body)
		if err != nil {
			return
		}
		h.delegate.OnPrivateMessage(peer, msgID, content, now)
		h.bus.Publish(events.Event{Kind: events.KindPrivateMessage, PeerID: peer.String()})
	case wire.NoisePayloadDeliveryAck:
		h.delegate.OnDeliveryAck(peer, string(body))
		h.bus.Publish(events.Event{Kind: events.KindDeliveryAck, PeerID: peer.String()})
	case wire.NoisePayloadReadReceipt:
		h.delegate.OnReadReceipt(peer, string(body))
		h.bus.Publish(events.Event{Kind: events.KindReadReceipt, PeerID: peer.String()})
	case wire.NoisePayloadFavoriteNotification:
		h.delegate.OnFavoriteNotification(peer, body)
		h.bus.Publish(events.Event{Kind: events.KindFavoriteChanged, PeerID: peer.String()})
	}
}

// relay implements spec §4.8's forwarding decision for a just-processed
// inbound packet. Relaying operates on the physical packet as received,
// not on any reassembled logical message, since each fragment must
// itself be relayed for reassembly to succeed at further hops.
func (h *Handler) relay(pkt *wire.Packet, link transport.LinkID, now time.Time) {
	if !h.relayEnabled.Load() {
		return
	}
	if pkt.TTL == 0 {
		return
	}
	if pkt.SenderID == h.id.PeerID() {
		return
	}
	if pkt.HasRecipient() && pkt.RecipientID == h.id.PeerID() {
		return
	}

	self := h.id.PeerID()

	if pkt.HasRoute() && len(pkt.Route) > 0 {
		next, remaining, ok := meshgraph.NextHopForRoute(pkt.Route)
		if !ok {
			return
		}
		routed := pkt.Clone()
		routed.Route = remaining
		routed.TTL--
		if len(remaining) == 0 {
			routed.Flags &^= wire.FlagHasRoute
		}
		encoded, err := wire.Encode(routed)
		if err != nil {
			return
		}
		if nextLink, ok := h.linkForPeer(next); ok {
			h.mesh.SendTo(nextLink, encoded)
		}
		return
	}

	direct := h.peers.DirectPeers()
	inboundPeer, _ := h.peerForLink(link)
	plan := meshgraph.PlanRelay(self, pkt, inboundPeer, direct, h.graph, now)
	if plan.Drop || len(plan.NextHops) == 0 {
		return
	}

	relayed := pkt.Clone()
	relayed.TTL--
	encoded, err := wire.Encode(relayed)
	if err != nil {
		return
	}
	for _, hop := range plan.NextHops {
		if hopLink, ok := h.linkForPeer(hop); ok {
			h.mesh.SendTo(hopLink, encoded)
		}
	}
}
