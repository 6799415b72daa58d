package router

import (
	"encoding/hex"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/events"
	"github.com/permissionlesstech/bitchat-core/pkg/favorites"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// The methods below implement handler.Delegate. Router only needs
// DeliveryAck, ReadReceipt, FavoriteNotification and SessionEstablished
// for its own bookkeeping; the rest are republished onto the event bus
// so a UI can still observe them when Router is wired as the sole
// delegate.

func (r *Router) OnPublicMessage(sender wire.PeerID, nickname, text string, now time.Time) {
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.KindPublicMessage, PeerID: sender.String(), Text: text, Payload: nickname})
	}
}

func (r *Router) OnPrivateMessage(sender wire.PeerID, msgID, content string, now time.Time) {
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.KindPrivateMessage, PeerID: sender.String(), Text: content, Payload: msgID})
	}
}

func (r *Router) OnDeliveryAck(sender wire.PeerID, msgID string) {
	r.status.set(msgID, StatusDelivered)
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.KindDeliveryAck, PeerID: sender.String(), Payload: msgID})
	}
}

func (r *Router) OnReadReceipt(sender wire.PeerID, msgID string) {
	r.status.set(msgID, StatusRead)
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.KindReadReceipt, PeerID: sender.String(), Payload: msgID})
	}
}

func (r *Router) OnFavoriteNotification(sender wire.PeerID, relayPub []byte) {
	if r.favorites == nil {
		return
	}
	rec, ok := r.peers.Get(sender)
	if !ok || !rec.Verified() {
		return
	}
	pub := rec.StaticPub.Hex()
	var relayHex *string
	if len(relayPub) > 0 {
		h := hex.EncodeToString(relayPub)
		relayHex = &h
	}
	r.favorites.Put(pub, func(fr *favorites.Record) {
		fr.TheyFavored = relayHex != nil
		fr.PeerRelayPub = relayHex
	})
}

func (r *Router) OnSessionEstablished(peer wire.PeerID) {
	r.drainToMesh(peer, time.Now())
}

func (r *Router) OnPeerLeft(peer wire.PeerID) {
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.KindPeerLeft, PeerID: peer.String()})
	}
}
