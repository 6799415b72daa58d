package transport

import (
	"testing"
	"time"
)

func TestFakeMeshDeliversPacket(t *testing.T) {
	a, b := NewFakeMeshPair("a", "b")
	received := make(chan []byte, 1)
	b.OnPacket(func(pkt []byte, link LinkID) {
		received <- pkt
	})
	if err := a.Start(); err != nil {
		t.Fatalf("a.Start: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("b.Start: %v", err)
	}
	defer a.Stop()
	defer b.Stop()

	a.Broadcast([]byte("hello"))

	select {
	case pkt := <-received:
		if string(pkt) != "hello" {
			t.Fatalf("unexpected packet: %q", pkt)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for packet delivery")
	}
}

func TestFakeOverlayDeliversGiftWrapped(t *testing.T) {
	a, b := NewFakeOverlayPair([]byte("a-pub"), []byte("b-pub"))
	received := make(chan []byte, 1)
	b.OnGiftWrapped(func(from, inner []byte) {
		received <- inner
	})

	if err := a.SendGiftWrapped([]byte("b-pub"), []byte("payload")); err != nil {
		t.Fatalf("SendGiftWrapped: %v", err)
	}

	select {
	case inner := <-received:
		if string(inner) != "payload" {
			t.Fatalf("unexpected payload: %q", inner)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for gift-wrapped delivery")
	}
}
