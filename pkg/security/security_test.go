package security

import (
	"testing"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

func TestDedupSuppressesSecondDelivery(t *testing.T) {
	d := NewDedup()
	now := time.Now()
	key := KeyForBytes([]byte("canonical-packet-bytes"))

	if d.Seen(key, now) {
		t.Fatalf("first delivery should not be seen")
	}
	if !d.Seen(key, now.Add(time.Second)) {
		t.Fatalf("second delivery within TTL should be seen")
	}
}

func TestDedupExpiresAfterTTL(t *testing.T) {
	d := NewDedup()
	now := time.Now()
	key := KeyForBytes([]byte("x"))
	d.Seen(key, now)
	if d.Seen(key, now.Add(DedupTTL+time.Second)) {
		t.Fatalf("expected entry to expire after TTL")
	}
}

func TestDedupEvictsOverCapacity(t *testing.T) {
	d := NewDedup()
	d.capacity = 4
	now := time.Now()
	for i := 0; i < 10; i++ {
		d.Seen(KeyForBytes([]byte{byte(i)}), now)
	}
	if d.Len() > 4 {
		t.Fatalf("expected capacity to be enforced, got %d entries", d.Len())
	}
}

func TestWithinReplayWindow(t *testing.T) {
	now := time.Now()
	fresh := uint64(now.UnixMilli())
	if !WithinReplayWindow(fresh, now) {
		t.Fatalf("expected a fresh timestamp to be accepted")
	}
	stale := uint64(now.Add(-10 * time.Minute).UnixMilli())
	if WithinReplayWindow(stale, now) {
		t.Fatalf("expected a stale timestamp to be rejected")
	}
	future := uint64(now.Add(10 * time.Minute).UnixMilli())
	if WithinReplayWindow(future, now) {
		t.Fatalf("expected an implausibly future timestamp to be rejected")
	}
}

func TestRateGateDropsExcess(t *testing.T) {
	g := NewRateGate()
	defer g.Close()

	var sender wire.PeerID
	sender[0] = 1
	now := time.Now()

	allowed := 0
	for i := 0; i < RateLimit+10; i++ {
		if g.Allow(sender, now) {
			allowed++
		}
	}
	if allowed != RateLimit {
		t.Fatalf("expected exactly %d allowed in a burst, got %d", RateLimit, allowed)
	}
	if g.Dropped() == 0 {
		t.Fatalf("expected dropped counter to increase")
	}
}

func TestCookieGateAdmitsWhenNotUnderLoad(t *testing.T) {
	g := NewCookieGate(func() bool { return false })
	var sender wire.PeerID
	if !g.Admit(sender, nil, time.Now()) {
		t.Fatalf("expected admit when not under load")
	}
}

func TestCookieGateRequiresProofUnderLoad(t *testing.T) {
	underLoad := true
	g := NewCookieGate(func() bool { return underLoad })
	var sender wire.PeerID
	sender[0] = 9
	now := time.Now()

	if g.Admit(sender, nil, now) {
		t.Fatalf("expected rejection without proof while under load")
	}
	proof := g.Challenge(sender)
	if !g.Admit(sender, &proof, now) {
		t.Fatalf("expected admit with valid proof")
	}
}
