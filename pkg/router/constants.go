// Package router resolves a send target to a conversation key and picks
// the cheapest transport currently available for it: a live mesh
// session, a mutual favorite's overlay relay, or a local outbox drained
// once one becomes available (spec §4.10). Grounded on device/peer.go's
// per-peer outbound queue and device/uapi.go's event-driven
// reconfiguration style: the router reacts to peer, session and
// favorite-change events rather than polling for a path to open up.
package router

import "time"

// SendMaxAge is how long an outbox entry survives with no available
// transport before its delivery status transitions to Failed (spec §7).
const SendMaxAge = 7 * 24 * time.Hour

const overlayAliasPrefix = "relay_"
const overlayAliasHexLen = 16
