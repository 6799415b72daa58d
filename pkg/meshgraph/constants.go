package meshgraph

import "time"

// GraphTTL bounds how long a directed edge survives without being
// refreshed by a newer GOSSIP TLV before it is pruned (spec §4.8).
const GraphTTL = 10 * time.Minute

// MinRouteHops is the minimum path length (inclusive of both endpoints)
// required before a source route is attached to a unicast packet; shorter
// paths fall through to controlled flood instead (spec §4.8: "path length
// >= 3").
const MinRouteHops = 3
