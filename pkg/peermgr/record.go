// Package peermgr maintains the live peer table: one record per currently
// known peer ID, a secondary fingerprint index for rebinding across peer-ID
// rotation, and the announce throttle (spec §4.4). Grounded on the
// teacher's device/peer.go (per-peer struct holding identity, timers, and
// connection-state fields behind a single RWMutex) and indextable.go's
// secondary-index-by-derived-key pattern, here reused for
// fingerprint -> current peer_id instead of handshake-index -> peer.
package peermgr

import (
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// Record is everything the peer table tracks about one currently-bound
// peer ID (spec §3's PeerRecord).
type Record struct {
	PeerID      wire.PeerID
	Nickname    string
	StaticPub   identity.NoisePublicKey
	SigningPub  []byte
	Fingerprint string

	RSSI         int
	Direct       bool
	LastSeen     time.Time
	FirstSeen    time.Time
	AnnouncedAt  time.Time
	HasAnnounced bool
}

// Verified reports whether the record carries a static Noise key, and
// therefore a stable fingerprint usable for favorites/store-and-forward.
func (r Record) Verified() bool {
	return !r.StaticPub.IsZero()
}

// Active reports whether the record has been seen within StaleTimeout of
// now.
func (r Record) Active(now time.Time) bool {
	return now.Sub(r.LastSeen) <= StaleTimeout
}

func (r Record) clone() Record {
	return r
}
