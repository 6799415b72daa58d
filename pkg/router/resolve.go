package router

import (
	"encoding/hex"

	"github.com/permissionlesstech/bitchat-core/pkg/favorites"
	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// resolved is everything the router could determine about a send target:
// its live mesh peer ID (if currently bound), its stable noise public
// key (if known), and the canonical conversation key entries for it are
// filed under.
//
// canonicalKey is the fingerprint (identity.Fingerprint of the noise
// public key) whenever one is known, matching peermgr's own rebind
// index, so that conversation unification can reuse RebindEvent.
// Fingerprint directly. It falls back to the raw target string only
// when no noise key has ever been observed for this identity yet.
type resolved struct {
	canonicalKey string

	peerID     wire.PeerID
	havePeerID bool

	noisePub     identity.NoisePublicKey
	haveNoisePub bool

	overlayPub []byte
}

// resolve maps a send target (mesh peer ID, raw noise public key hex, or
// overlay alias) to what the router currently knows about that identity
// (spec §4.10). Callers should check isRecognizedTarget first; resolve
// itself never fails, it just may come back empty.
func (r *Router) resolve(target string) resolved {
	if id, ok := parseMeshPeerID(target); ok {
		if rec, ok := r.peers.Get(id); ok && rec.Verified() {
			return resolved{
				canonicalKey: rec.Fingerprint,
				peerID:       id,
				havePeerID:   true,
				noisePub:     rec.StaticPub,
				haveNoisePub: true,
			}
		}
		return resolved{canonicalKey: id.String(), peerID: id, havePeerID: true}
	}

	if pub, ok := parseNoisePubHex(target); ok {
		fp := identity.Fingerprint(pub)
		res := resolved{canonicalKey: fp, noisePub: pub, haveNoisePub: true}
		if peerID, ok := r.peers.PeerIDForFingerprint(fp); ok {
			res.peerID = peerID
			res.havePeerID = true
		}
		return res
	}

	if isOverlayAlias(target) {
		if fav, ok := r.favoriteForOverlayAlias(target); ok {
			return r.resolveFavorite(fav)
		}
		return resolved{canonicalKey: target}
	}

	return resolved{canonicalKey: target}
}

func (r *Router) resolveFavorite(fav favorites.Record) resolved {
	overlayPub, _ := hex.DecodeString(derefString(fav.PeerRelayPub))
	res := resolved{canonicalKey: fav.PeerNoisePub, overlayPub: overlayPub}

	pub, err := identity.NoisePublicKeyFromHex(fav.PeerNoisePub)
	if err != nil {
		return res
	}
	res.noisePub = pub
	res.haveNoisePub = true
	fp := identity.Fingerprint(pub)
	res.canonicalKey = fp
	if peerID, ok := r.peers.PeerIDForFingerprint(fp); ok {
		res.peerID = peerID
		res.havePeerID = true
	}
	return res
}

// favoriteForOverlayAlias scans the favorites table for the record whose
// relay public key derives alias. Favorites are keyed by noise public
// key hex, not by relay key or alias, so this is a linear scan; the
// table is expected to stay small (one entry per mutual favorite).
func (r *Router) favoriteForOverlayAlias(alias string) (favorites.Record, bool) {
	if r.favorites == nil {
		return favorites.Record{}, false
	}
	for _, rec := range r.favorites.List() {
		if rec.PeerRelayPub == nil {
			continue
		}
		pub, err := hex.DecodeString(*rec.PeerRelayPub)
		if err != nil {
			continue
		}
		if OverlayAlias(pub) == alias {
			return rec, true
		}
	}
	return favorites.Record{}, false
}

func favFingerprint(fav favorites.Record) string {
	pub, err := identity.NoisePublicKeyFromHex(fav.PeerNoisePub)
	if err != nil {
		return fav.PeerNoisePub
	}
	return identity.Fingerprint(pub)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
