package identity

import (
	cryptorand "crypto/rand"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// NewPeerID generates a fresh random 8-byte ephemeral peer identifier
// (spec §3/§4.2). Peer IDs are regenerated per process start, or on an
// explicit rotation, never derived from the static identity.
func NewPeerID() (wire.PeerID, error) {
	for {
		var id wire.PeerID
		if _, err := cryptorand.Read(id[:]); err != nil {
			return id, err
		}
		if !id.IsBroadcast() {
			return id, nil
		}
		// Astronomically unlikely, but a peer ID must never collide
		// with the reserved broadcast sentinel.
	}
}
