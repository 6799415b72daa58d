package router

import (
	"encoding/hex"
	"strings"

	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// OverlayAlias derives the conversation key used for a peer reachable
// only through the overlay: "relay_" followed by the first 16 hex
// characters of its relay public key (spec §3).
func OverlayAlias(overlayPub []byte) string {
	h := hex.EncodeToString(overlayPub)
	if len(h) > overlayAliasHexLen {
		h = h[:overlayAliasHexLen]
	}
	return overlayAliasPrefix + h
}

func isOverlayAlias(s string) bool {
	return len(s) == len(overlayAliasPrefix)+overlayAliasHexLen && strings.HasPrefix(s, overlayAliasPrefix)
}

func parseMeshPeerID(s string) (wire.PeerID, bool) {
	var id wire.PeerID
	if len(s) != wire.PeerIDSize*2 {
		return id, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

func parseNoisePubHex(s string) (identity.NoisePublicKey, bool) {
	if len(s) != identity.NoiseKeySize*2 {
		return identity.NoisePublicKey{}, false
	}
	k, err := identity.NoisePublicKeyFromHex(s)
	if err != nil {
		return identity.NoisePublicKey{}, false
	}
	return k, true
}

// isRecognizedTarget reports whether target matches any of the three
// conversation-key forms a send can legally name.
func isRecognizedTarget(target string) bool {
	if _, ok := parseMeshPeerID(target); ok {
		return true
	}
	if _, ok := parseNoisePubHex(target); ok {
		return true
	}
	return isOverlayAlias(target)
}
