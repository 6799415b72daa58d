package noisesession

import (
	"bytes"
	"testing"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

func mustPeerID(t *testing.T, b byte) wire.PeerID {
	t.Helper()
	var id wire.PeerID
	id[0] = b
	return id
}

// runHandshake drives a full XX exchange between an initiator and
// responder Session pair and asserts both reach Established.
func runHandshake(t *testing.T, initiator, responder *Session) {
	t.Helper()
	now := time.Now()

	msg1, err := initiator.StartHandshake(now)
	if err != nil {
		t.Fatalf("StartHandshake: %v", err)
	}
	if err := responder.AcceptHandshake(msg1, now); err != nil {
		t.Fatalf("AcceptHandshake: %v", err)
	}

	msg2, err := responder.NextMessage(nil, now)
	if err != nil {
		t.Fatalf("responder NextMessage: %v", err)
	}

	msg3, err := initiator.NextMessage(msg2, now)
	if err != nil {
		t.Fatalf("initiator NextMessage: %v", err)
	}
	if initiator.State() != Established {
		t.Fatalf("initiator expected Established, got %v", initiator.State())
	}

	if err := responder.FinishResponder(msg3, now); err != nil {
		t.Fatalf("FinishResponder: %v", err)
	}
	if responder.State() != Established {
		t.Fatalf("responder expected Established, got %v", responder.State())
	}
}

func TestHandshakeEstablishesAndTransports(t *testing.T) {
	aKey, _, err := identity.GenerateNoiseKeypair()
	if err != nil {
		t.Fatalf("GenerateNoiseKeypair: %v", err)
	}
	bKey, bPub, err := identity.GenerateNoiseKeypair()
	if err != nil {
		t.Fatalf("GenerateNoiseKeypair: %v", err)
	}

	a := newSession(mustPeerID(t, 1), aKey)
	b := newSession(mustPeerID(t, 2), bKey)

	runHandshake(t, a, b)

	aRemote, ok := a.RemoteStatic()
	if !ok {
		t.Fatalf("expected initiator to know responder's static key")
	}
	if !aRemote.Equal(bPub) {
		t.Fatalf("initiator learned wrong remote static key")
	}

	plaintext := []byte("hello mesh")
	ct, nonce, err := a.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := b.Decrypt(ct, nonce)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptRejectsReplay(t *testing.T) {
	aKey, _, _ := identity.GenerateNoiseKeypair()
	bKey, _, _ := identity.GenerateNoiseKeypair()
	a := newSession(mustPeerID(t, 1), aKey)
	b := newSession(mustPeerID(t, 2), bKey)
	runHandshake(t, a, b)

	ct, nonce, err := a.Encrypt([]byte("msg"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(ct, nonce); err != nil {
		t.Fatalf("first decrypt should succeed: %v", err)
	}
	if _, err := b.Decrypt(ct, nonce); err != ErrNonceReuse {
		t.Fatalf("expected ErrNonceReuse on replay, got %v", err)
	}
}

func TestManagerTieBreak(t *testing.T) {
	aKey, _, _ := identity.GenerateNoiseKeypair()
	bKey, _, _ := identity.GenerateNoiseKeypair()
	low := mustPeerID(t, 1)
	high := mustPeerID(t, 2)

	mLow := NewManager(low, aKey)
	mHigh := NewManager(high, bKey)

	now := time.Now()

	// The higher-ID peer loses the tie-break and should produce no
	// message when asked to initiate toward the lower-ID peer.
	msg, err := mHigh.StartHandshake(low, now)
	if err != nil {
		t.Fatalf("StartHandshake: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message from the losing side of the tie-break")
	}

	msg, err = mLow.StartHandshake(high, now)
	if err != nil {
		t.Fatalf("StartHandshake: %v", err)
	}
	if msg == nil {
		t.Fatalf("expected the winning side to produce an initiation message")
	}
}

func TestHandshakeExpiresAfterTimeout(t *testing.T) {
	aKey, _, _ := identity.GenerateNoiseKeypair()
	a := newSession(mustPeerID(t, 1), aKey)

	now := time.Now()
	if _, err := a.StartHandshake(now); err != nil {
		t.Fatalf("StartHandshake: %v", err)
	}
	if a.Expired(now) {
		t.Fatalf("should not be expired immediately")
	}
	later := now.Add(HandshakeTimeout + time.Second)
	if !a.Expired(later) {
		t.Fatalf("expected handshake to be expired after timeout")
	}
	backoff := a.MarkExpired()
	if backoff != RetryBackoffInitial {
		t.Fatalf("expected initial backoff %v, got %v", RetryBackoffInitial, backoff)
	}
	if a.State() != Expired {
		t.Fatalf("expected state Expired, got %v", a.State())
	}
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	d := time.Duration(0)
	for i := 0; i < 10; i++ {
		d = NextBackoff(d)
		if d > RetryBackoffMax {
			t.Fatalf("backoff exceeded cap: %v", d)
		}
	}
	if d != RetryBackoffMax {
		t.Fatalf("expected backoff to reach cap %v, got %v", RetryBackoffMax, d)
	}
}
