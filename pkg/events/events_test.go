package events

import "testing"

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Kind: KindPeerJoined, PeerID: "abc"})

	select {
	case ev := <-ch:
		if ev.Kind != KindPeerJoined || ev.PeerID != "abc" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected buffered event to be available immediately")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	cancel()

	b.Publish(Event{Kind: KindPeerLeft})

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("expected no event after cancel, got %+v", ev)
		}
	default:
	}
}

func TestPublishDoesNotBlockWhenQueueFull(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriberQueueDepth+10; i++ {
		b.Publish(Event{Kind: KindPacketDropped})
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(Event{Kind: KindOverlayStatus})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		default:
			t.Fatalf("expected event on every subscriber")
		}
	}
}
