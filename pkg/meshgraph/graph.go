// Package meshgraph tracks directed peer-adjacency edges learned from
// GOSSIP TLVs and computes relay decisions: source-routed unicast when a
// fresh enough path exists, controlled flood otherwise (spec §4.8).
// Grounded on the teacher's device/allowedips.go for the "single writer,
// readers get a snapshot" discipline spec §5 requires of the peer table
// and mesh graph; the routing algorithm itself is a fresh BFS; allowedips'
// trie is IP-prefix longest-match and has no peer-graph shortest-path
// analog to reuse.
package meshgraph

import (
	"sync"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

type edge struct {
	neighbor  wire.PeerID
	refreshed time.Time
}

// Graph stores directed edges (sender -> neighbor) with freshness
// timestamps, pruning edges older than GraphTTL.
type Graph struct {
	mu    sync.RWMutex
	edges map[wire.PeerID][]edge
}

func NewGraph() *Graph {
	return &Graph{edges: make(map[wire.PeerID][]edge)}
}

// ObserveGossip records that sender reported neighbors as its direct
// links at timestamp now, refreshing or inserting each edge.
func (g *Graph) ObserveGossip(sender wire.PeerID, neighbors []wire.PeerID, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing := g.edges[sender]
	next := make([]edge, 0, len(neighbors))
	for _, n := range neighbors {
		next = append(next, edge{neighbor: n, refreshed: now})
	}
	// Preserve any existing edges not re-asserted by this gossip (they
	// age out on their own via GraphTTL rather than disappearing the
	// moment a sender's GOSSIP TLV happens to omit them, since TLV
	// capacity is capped at 10 neighbors).
	for _, e := range existing {
		found := false
		for _, n := range neighbors {
			if e.neighbor == n {
				found = true
				break
			}
		}
		if !found {
			next = append(next, e)
		}
	}
	g.edges[sender] = next
}

// snapshotLocked returns a copy of the edge map with expired edges
// dropped, the copy-on-write read the concurrency model requires (spec
// §5). Caller holds no lock; this takes its own read lock.
func (g *Graph) snapshotLocked(now time.Time) map[wire.PeerID][]wire.PeerID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[wire.PeerID][]wire.PeerID, len(g.edges))
	for from, edges := range g.edges {
		var fresh []wire.PeerID
		for _, e := range edges {
			if now.Sub(e.refreshed) <= GraphTTL {
				fresh = append(fresh, e.neighbor)
			}
		}
		if len(fresh) > 0 {
			out[from] = fresh
		}
	}
	return out
}

// Prune removes edges older than GraphTTL, returning the number dropped.
func (g *Graph) Prune(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	dropped := 0
	for from, edges := range g.edges {
		kept := edges[:0]
		for _, e := range edges {
			if now.Sub(e.refreshed) <= GraphTTL {
				kept = append(kept, e)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(g.edges, from)
		} else {
			g.edges[from] = kept
		}
	}
	return dropped
}

// Route is a source route to attach to a unicast packet: the
// intermediate hops between self and the recipient, excluding both
// endpoints.
type Route struct {
	Hops []wire.PeerID
}

// FindRoute runs BFS from self to recipient over fresh edges and returns
// the intermediate hops if a path of at least MinRouteHops nodes
// (endpoints included) exists (spec §4.8).
func (g *Graph) FindRoute(self, recipient wire.PeerID, now time.Time) (Route, bool) {
	adj := g.snapshotLocked(now)
	if self == recipient {
		return Route{}, false
	}

	type queued struct {
		id   wire.PeerID
		path []wire.PeerID
	}
	visited := map[wire.PeerID]bool{self: true}
	queue := []queued{{id: self, path: []wire.PeerID{self}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range adj[cur.id] {
			if visited[next] {
				continue
			}
			visited[next] = true
			path := append(append([]wire.PeerID(nil), cur.path...), next)
			if next == recipient {
				if len(path) < MinRouteHops {
					return Route{}, false
				}
				return Route{Hops: path[1 : len(path)-1]}, true
			}
			queue = append(queue, queued{id: next, path: path})
		}
	}
	return Route{}, false
}

// DirectNeighbors returns the fresh outgoing edges recorded for the given
// peer, i.e. the neighbor list it last reported in its GOSSIP TLV.
func (g *Graph) DirectNeighbors(self wire.PeerID, now time.Time) []wire.PeerID {
	adj := g.snapshotLocked(now)
	return adj[self]
}

// Clear drops every edge at once, as part of a panic reset (spec §7).
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = make(map[wire.PeerID][]edge)
}
