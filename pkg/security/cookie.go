package security

import (
	"crypto/hmac"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// CookieRefreshInterval is how often the device-wide MAC secret used by
// CookieGate rotates, bounding how long a captured proof-of-recency
// remains valid. Adapted from the teacher's WireGuard MAC1/MAC2 anti-DoS
// design (src/macs.go, src/cookie.go): ours has no wire-visible MAC
// field, since spec.md's packet format doesn't carry one, so it gates
// handshake admission locally instead of round-tripping a cookie reply.
const CookieRefreshInterval = 2 * time.Minute

// CookieGate throttles NOISE_HANDSHAKE admission once the device is under
// load, independent of the general per-sender RateGate, so a burst of
// handshake attempts from many distinct forged sender IDs can't each get
// their own fresh token bucket.
type CookieGate struct {
	mu        sync.Mutex
	secret    [32]byte
	refreshed time.Time
	underLoad func() bool
}

// NewCookieGate creates a gate. underLoad reports whether the device is
// currently under enough load to require proof-of-recency before
// admitting a new handshake attempt (e.g. active handshake count above a
// threshold); nil means never under load.
func NewCookieGate(underLoad func() bool) *CookieGate {
	g := &CookieGate{underLoad: underLoad}
	g.rotate(time.Now())
	return g
}

func (g *CookieGate) rotate(now time.Time) {
	cryptorand.Read(g.secret[:])
	g.refreshed = now
}

// Admit reports whether a handshake attempt from sender should proceed.
// Under normal load it always admits; under load, it requires the caller
// to present a proof previously issued by Challenge, matching this
// secret's current epoch.
func (g *CookieGate) Admit(sender wire.PeerID, proof *[32]byte, now time.Time) bool {
	g.mu.Lock()
	if now.Sub(g.refreshed) > CookieRefreshInterval {
		g.rotate(now)
	}
	secret := g.secret
	underLoad := g.underLoad != nil && g.underLoad()
	g.mu.Unlock()

	if !underLoad {
		return true
	}
	if proof == nil {
		return false
	}
	want := g.macWithSecret(sender, secret)
	return hmac.Equal(proof[:], want[:])
}

// Challenge issues the proof a sender must echo back via Admit once the
// gate reports load.
func (g *CookieGate) Challenge(sender wire.PeerID) [32]byte {
	g.mu.Lock()
	secret := g.secret
	g.mu.Unlock()
	return g.macWithSecret(sender, secret)
}

func (g *CookieGate) macWithSecret(sender wire.PeerID, secret [32]byte) [32]byte {
	h := hmac.New(sha256.New, secret[:])
	h.Write(sender[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
