package router

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/events"
	"github.com/permissionlesstech/bitchat-core/pkg/favorites"
	"github.com/permissionlesstech/bitchat-core/pkg/handler"
	"github.com/permissionlesstech/bitchat-core/pkg/noisesession"
	"github.com/permissionlesstech/bitchat-core/pkg/peermgr"
	"github.com/permissionlesstech/bitchat-core/pkg/transport"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

var _ handler.Delegate = (*Router)(nil)

// Router is the Message Router of spec §4.10: it resolves a send target
// to a conversation key, picks the cheapest transport currently
// available for it, and parks the message in an Outbox otherwise. It
// implements handler.Delegate so delivery acks, read receipts and
// favorite changes flow straight back into its own bookkeeping; it is
// expected to be the sole handler.Delegate an orchestrator wires in,
// forwarding whatever it doesn't need itself to pkg/events.
type Router struct {
	peers     *peermgr.Manager
	sessions  *noisesession.Manager
	favorites *favorites.Store
	handler   *handler.Handler
	overlay   transport.OverlayTransport
	bus       *events.Bus

	outbox *Outbox
	status *statusTable

	mu        sync.Mutex
	submitted map[string]struct{}
}

// New wires a Router to its collaborators. overlay and fav may be nil
// (overlay-less or favorites-less deployments park everything in the
// outbox and never drain it over that path).
func New(
	peers *peermgr.Manager,
	sessions *noisesession.Manager,
	fav *favorites.Store,
	h *handler.Handler,
	overlay transport.OverlayTransport,
	bus *events.Bus,
) *Router {
	r := &Router{
		peers:     peers,
		sessions:  sessions,
		favorites: fav,
		handler:   h,
		overlay:   overlay,
		bus:       bus,
		outbox:    NewOutbox(),
		status:    newStatusTable(),
		submitted: make(map[string]struct{}),
	}

	peers.OnRebind(func(ev peermgr.RebindEvent) {
		r.outbox.Unify(ev.OldPeerID.String(), ev.Fingerprint)
	})
	if fav != nil {
		fav.OnChange(func(pub string, old, new *favorites.Record) {
			r.onFavoriteChange(new)
		})
	}
	if overlay != nil {
		overlay.OnGiftWrapped(func(fromPub, inner []byte) {
			r.handleOverlayInbound(fromPub, inner)
		})
	}
	return r
}

// SendPrivate resolves target, attempts a live mesh send and then a
// mutual-favorite overlay send, and otherwise queues the message for
// later delivery (spec §4.10). Resending the same msgID delivers at
// most once, regardless of which path the first attempt took.
func (r *Router) SendPrivate(target, content, nickname, msgID string, now time.Time) error {
	if !isRecognizedTarget(target) {
		return ErrTargetUnknown
	}
	if r.alreadySubmitted(msgID) {
		return nil
	}
	r.markSubmitted(msgID)
	r.status.set(msgID, StatusSending)

	res := r.resolve(target)

	body, err := handler.BuildPrivateMessage(msgID, content)
	if err != nil {
		return err
	}

	if res.havePeerID {
		if rec, ok := r.peers.Get(res.peerID); ok && rec.Direct {
			sess, ok := r.sessions.Get(res.peerID)
			if ok && sess.State() == noisesession.Established {
				if err := r.handler.SendEncrypted(res.peerID, body, now); err == nil {
					return nil
				}
			} else if !ok && r.handler != nil {
				// No session at all yet: kick off a handshake lazily (spec
				// §4.2). This is a no-op if the tie-break says the peer
				// initiates instead; either way the message still queues
				// below and drains once OnSessionEstablished fires.
				_ = r.handler.StartHandshake(res.peerID, now)
			}
		}
	}

	if res.haveNoisePub && r.overlay != nil && r.favorites != nil {
		if fav, ok := r.favorites.Get(res.noisePub.Hex()); ok && fav.IsMutual() && fav.PeerRelayPub != nil {
			if overlayPub, err := hex.DecodeString(*fav.PeerRelayPub); err == nil {
				if err := r.overlay.SendGiftWrapped(overlayPub, body); err == nil {
					return nil
				}
			}
		}
	}

	r.outbox.Enqueue(res.canonicalKey, outboxEntry{
		msgID: msgID, content: content, nickname: nickname, enqueuedAt: now,
	})
	return nil
}

// SetHandler back-patches the handler this router drives outbound sends
// through. Router and Handler are mutually referential (Handler needs a
// Delegate, Router needs a Handler to call SendEncrypted/StartHandshake),
// so a node orchestrator constructs the Router first with no handler,
// builds the Handler with the Router as its Delegate, then calls this
// before any traffic flows.
func (r *Router) SetHandler(h *handler.Handler) {
	r.handler = h
}

// DeliveryStatus reports the current status of a previously submitted
// message ID.
func (r *Router) DeliveryStatus(msgID string) (DeliveryStatus, bool) {
	return r.status.get(msgID)
}

// SweepOutbox drops outbox entries older than SendMaxAge, failing their
// delivery status (spec §7). Intended to run alongside the rest of a
// node's periodic housekeeping timers.
func (r *Router) SweepOutbox(now time.Time) {
	for _, id := range r.outbox.Sweep(now) {
		r.status.failIfPending(id)
	}
}

// Reset clears the outbox, delivery statuses and idempotence table, as
// part of a panic reset (spec §7). Callers are expected to quiesce
// sends before calling it, matching the single-writer actor model the
// rest of the core follows (spec §5).
func (r *Router) Reset() {
	r.outbox = NewOutbox()
	r.status = newStatusTable()
	r.mu.Lock()
	r.submitted = make(map[string]struct{})
	r.mu.Unlock()
}

// NotifyOverlayReady drains every outbox entry backed by a mutual
// favorite's overlay relay key. The router has no way to observe
// transport.OverlayTransport's reachability itself (spec §6.3's adapter
// is send/receive only), so the orchestrator is expected to call this
// once it observes the overlay come up.
func (r *Router) NotifyOverlayReady() {
	if r.favorites == nil || r.overlay == nil {
		return
	}
	for _, fav := range r.favorites.List() {
		r.drainToOverlay(fav)
	}
}

func (r *Router) onFavoriteChange(rec *favorites.Record) {
	if rec == nil {
		return
	}
	r.drainToOverlay(*rec)
}

func (r *Router) drainToOverlay(fav favorites.Record) {
	if !fav.IsMutual() || fav.PeerRelayPub == nil {
		return
	}
	overlayPub, err := hex.DecodeString(*fav.PeerRelayPub)
	if err != nil {
		return
	}
	fp := favFingerprint(fav)
	r.outbox.Drain(fp, func(e outboxEntry) error {
		if r.overlay == nil {
			return errOverlayUnavailable
		}
		body, err := handler.BuildPrivateMessage(e.msgID, e.content)
		if err != nil {
			return err
		}
		return r.overlay.SendGiftWrapped(overlayPub, body)
	})
}

func (r *Router) drainToMesh(peer wire.PeerID, now time.Time) {
	rec, ok := r.peers.Get(peer)
	if !ok {
		return
	}
	keys := []string{peer.String()}
	if rec.Verified() {
		keys = append(keys, rec.Fingerprint)
	}
	for _, key := range keys {
		r.outbox.Drain(key, func(e outboxEntry) error {
			body, err := handler.BuildPrivateMessage(e.msgID, e.content)
			if err != nil {
				return err
			}
			return r.handler.SendEncrypted(peer, body, now)
		})
	}
}

func (r *Router) handleOverlayInbound(fromPub, inner []byte) {
	typ, body, err := handler.DecodeNoisePayload(inner)
	if err != nil {
		return
	}
	switch typ {
	case wire.NoisePayloadPrivateMessage:
		msgID, content, err := handler.DecodePrivateMessageTLV(body)
		if err != nil {
			return
		}
		if r.bus != nil {
			r.bus.Publish(events.Event{Kind: events.KindPrivateMessage, PeerID: OverlayAlias(fromPub), Text: content, Payload: msgID})
		}
	case wire.NoisePayloadDeliveryAck:
		r.status.set(string(body), StatusDelivered)
	case wire.NoisePayloadReadReceipt:
		r.status.set(string(body), StatusRead)
	}
}

func (r *Router) alreadySubmitted(msgID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.submitted[msgID]
	return ok
}

func (r *Router) markSubmitted(msgID string) {
	r.mu.Lock()
	r.submitted[msgID] = struct{}{}
	r.mu.Unlock()
}
