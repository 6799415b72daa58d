package bitchat

import (
	"time"

	"github.com/google/uuid"

	"github.com/permissionlesstech/bitchat-core/pkg/events"
	"github.com/permissionlesstech/bitchat-core/pkg/favorites"
	"github.com/permissionlesstech/bitchat-core/pkg/handler"
	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/noisesession"
	"github.com/permissionlesstech/bitchat-core/pkg/router"
)

// SetNickname changes this node's displayed nickname and immediately
// fires an out-of-cycle broadcast announce, per the announcement
// throttle's "explicit trigger" exception (spec §3).
func (n *Node) SetNickname(nickname string) {
	n.mu.Lock()
	n.nickname = nickname
	n.mu.Unlock()
	n.sendBroadcastAnnounce(time.Now())
}

// SendPublic broadcasts text as a public MESSAGE and returns a locally
// generated message ID, for callers that want to correlate it with their
// own local echo. The ID is not carried in the broadcast packet.
func (n *Node) SendPublic(text string) (string, error) {
	msgID := uuid.NewString()
	pkt := handler.BuildMessage(text)
	encoded, err := handler.Finalize(n.id, pkt, time.Now())
	if err != nil {
		return "", err
	}
	n.mesh.Broadcast(encoded)
	return msgID, nil
}

// SendPrivate routes a private message to target (a mesh peer ID,
// 64-hex Noise public key, or overlay alias) through the Message Router
// and returns the message ID assigned to it.
func (n *Node) SendPrivate(target, content string) (string, error) {
	msgID := uuid.NewString()
	n.mu.RLock()
	nickname := n.nickname
	n.mu.RUnlock()
	if err := n.router.SendPrivate(target, content, nickname, msgID, time.Now()); err != nil {
		return "", err
	}
	return msgID, nil
}

// DeliveryStatus reports the last known delivery state of a message sent
// via SendPrivate.
func (n *Node) DeliveryStatus(msgID string) (router.DeliveryStatus, bool) {
	return n.router.DeliveryStatus(msgID)
}

// SubscribeEvents returns a live feed of this node's debug/UI events and
// a cancel function to stop receiving them (spec §6.5, §7).
func (n *Node) SubscribeEvents() (<-chan events.Event, func()) {
	return n.bus.Subscribe()
}

// ToggleFavorite marks or unmarks peerNoisePubHex as a favorite and, if a
// live session with that peer exists, notifies it immediately so it can
// learn (or forget) this node's overlay relay key (spec §4.9's "mutual
// favorite" precondition for store-and-forward and overlay delivery).
// relayPub is this node's own reachable overlay public key, or nil to
// signal un-favoriting.
func (n *Node) ToggleFavorite(peerNoisePubHex string, favorite bool, relayPub []byte) (favorites.Record, error) {
	// PeerRelayPub is deliberately left untouched here: it records the
	// *peer's* relay key, learned only from their own FAVORITE_NOTIFICATION
	// (router.go's OnFavoriteNotification), never from our own outgoing one.
	rec, err := n.favorites.Put(peerNoisePubHex, func(r *favorites.Record) {
		r.WeFavored = favorite
	})
	if err != nil {
		return favorites.Record{}, err
	}

	n.notifyFavoriteChange(peerNoisePubHex, favorite, relayPub)
	return rec, nil
}

func (n *Node) notifyFavoriteChange(peerNoisePubHex string, favorite bool, relayPub []byte) {
	pub, err := identity.NoisePublicKeyFromHex(peerNoisePubHex)
	if err != nil {
		return
	}
	fp := identity.Fingerprint(pub)
	peer, ok := n.peers.PeerIDForFingerprint(fp)
	if !ok {
		return
	}
	sess, ok := n.sessions.Get(peer)
	if !ok || sess.State() != noisesession.Established {
		return
	}
	var body []byte
	if favorite {
		body = handler.BuildFavoriteNotification(relayPub)
	} else {
		body = handler.BuildFavoriteNotification(nil)
	}
	_ = n.handler.SendEncrypted(peer, body, time.Now())
}

// PanicReset wipes every piece of local state this node holds: identity
// keys, the peer table, live sessions, the mesh graph, the store-and-
// forward cache, fragment reassembly buffers, the outbox, and favorites
// (spec §7: "clears keys, records, outboxes, and fragment buffers
// atomically"). The node keeps running afterward under a brand new
// identity; callers should treat every prior conversation as gone.
func (n *Node) PanicReset() error {
	if err := n.id.PanicReset(); err != nil {
		return err
	}
	n.peers.Clear()
	n.sessions.Clear()
	n.graph.Clear()
	n.frag.Clear()
	n.router.Reset()
	if err := n.favorites.Clear(); err != nil {
		return err
	}

	n.bus.Publish(events.Event{Kind: events.KindPanicReset})
	return nil
}
