// Package events implements the debug-panel event feed a node exposes via
// subscribe_events (spec §6.5, §7). Grounded on the teacher's event.go
// Event type: a buffered, non-blocking channel send so a slow or absent
// subscriber never stalls the caller that fired the event.
package events

import "sync"

// Kind discriminates the event types surfaced to subscribers.
type Kind string

const (
	KindPeerJoined       Kind = "peer_joined"
	KindPeerLeft         Kind = "peer_left"
	KindPeerRebound      Kind = "peer_rebound"
	KindSessionState     Kind = "session_state"
	KindPublicMessage    Kind = "public_message"
	KindPrivateMessage   Kind = "private_message"
	KindDeliveryAck      Kind = "delivery_ack"
	KindReadReceipt      Kind = "read_receipt"
	KindFavoriteChanged  Kind = "favorite_changed"
	KindPacketDropped    Kind = "packet_dropped"
	KindOverlayStatus    Kind = "overlay_status"
	KindPanicReset       Kind = "panic_reset"
)

// Event is one item on the feed. Fields unrelated to Kind are left zero.
type Event struct {
	Kind    Kind
	PeerID  string
	Text    string
	Err     error
	Payload any
}

// subscriberQueueDepth bounds how many undelivered events a slow
// subscriber can fall behind by before new events are dropped for it,
// mirroring the teacher's single-slot buffered channel but sized for a
// UI feed rather than a single coalesced timer tick.
const subscriberQueueDepth = 64

// Bus fans out Event values to any number of subscribers without
// blocking the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of future events and a cancel function
// that unregisters it. The channel is never closed by cancel while the
// caller still holds a reference; callers should simply stop reading.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberQueueDepth)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans ev out to every current subscriber, dropping it for any
// subscriber whose queue is full rather than blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
