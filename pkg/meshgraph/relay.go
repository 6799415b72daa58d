package meshgraph

import (
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// Plan describes what a relay decision should do with an inbound packet:
// forward it to a specific set of next hops (direct links), or drop it
// entirely.
type Plan struct {
	// NextHops lists which directly-connected peers to forward to; for a
	// routed unicast this is exactly the first hop.
	NextHops []wire.PeerID

	// Drop is true when the packet must not be relayed at all (spec
	// §4.8: ttl == 0, failed signature, already deduped — those last two
	// are checked by the caller before Plan is ever consulted).
	Drop bool
}

// PlanRelay decides how to forward an already-validated inbound packet
// that is not addressed to self, given the current direct-link set and
// mesh graph (spec §4.8). inbound is the peer the packet arrived from
// and is always excluded from the forward set. directLinks lists peers
// reachable without relay.
func PlanRelay(self wire.PeerID, pkt *wire.Packet, inbound wire.PeerID, directLinks []wire.PeerID, graph *Graph, now time.Time) Plan {
	if pkt.TTL == 0 {
		return Plan{Drop: true}
	}

	if !pkt.HasRecipient() || pkt.RecipientID.IsBroadcast() {
		return Plan{NextHops: excluding(directLinks, inbound)}
	}

	if route, ok := graph.FindRoute(self, pkt.RecipientID, now); ok {
		return Plan{NextHops: []wire.PeerID{route.Hops[0]}}
	}

	return Plan{NextHops: excluding(directLinks, inbound)}
}

// NextHopForRoute returns the next hop to forward to when relaying a
// packet that already carries a source route, popping self off the front
// (spec §4.8: "intermediate nodes pop themselves off when forwarding").
func NextHopForRoute(route []wire.PeerID) (next wire.PeerID, remaining []wire.PeerID, ok bool) {
	if len(route) == 0 {
		return wire.PeerID{}, nil, false
	}
	return route[0], route[1:], true
}

func excluding(peers []wire.PeerID, exclude wire.PeerID) []wire.PeerID {
	out := make([]wire.PeerID, 0, len(peers))
	for _, p := range peers {
		if p != exclude {
			out = append(out, p)
		}
	}
	return out
}
