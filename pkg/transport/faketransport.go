package transport

import "sync"

// FakeMesh is an in-memory MeshTransport for tests, modeled on the
// teacher's conn/bindtest channel-pair binds: two FakeMesh instances
// wired to each other's inboxes stand in for a real BLE link.
type FakeMesh struct {
	mu       sync.Mutex
	local    LinkID
	peerInbox chan<- []byte
	inbox    <-chan []byte

	onPacket func([]byte, LinkID)
	onUp     func(LinkID)
	onDown   func(LinkID)

	stop chan struct{}
}

// NewFakeMeshPair returns two linked FakeMesh transports, as if directly
// connected over one BLE link.
func NewFakeMeshPair(a, b LinkID) (*FakeMesh, *FakeMesh) {
	abChan := make(chan []byte, 64)
	baChan := make(chan []byte, 64)
	fa := &FakeMesh{local: a, peerInbox: abChan, inbox: baChan, stop: make(chan struct{})}
	fb := &FakeMesh{local: b, peerInbox: baChan, inbox: abChan, stop: make(chan struct{})}
	return fa, fb
}

func (f *FakeMesh) Broadcast(packet []byte) {
	select {
	case f.peerInbox <- packet:
	default:
	}
}

func (f *FakeMesh) SendTo(link LinkID, packet []byte) bool {
	select {
	case f.peerInbox <- packet:
		return true
	default:
		return false
	}
}

func (f *FakeMesh) OnPacket(cb func([]byte, LinkID)) {
	f.mu.Lock()
	f.onPacket = cb
	f.mu.Unlock()
}

func (f *FakeMesh) OnLinkUp(cb func(LinkID))   { f.mu.Lock(); f.onUp = cb; f.mu.Unlock() }
func (f *FakeMesh) OnLinkDown(cb func(LinkID)) { f.mu.Lock(); f.onDown = cb; f.mu.Unlock() }

func (f *FakeMesh) Start() error {
	go func() {
		f.mu.Lock()
		up := f.onUp
		f.mu.Unlock()
		if up != nil {
			up(f.local)
		}
		for {
			select {
			case <-f.stop:
				return
			case pkt := <-f.inbox:
				f.mu.Lock()
				cb := f.onPacket
				f.mu.Unlock()
				if cb != nil {
					cb(pkt, f.local)
				}
			}
		}
	}()
	return nil
}

func (f *FakeMesh) Stop() error {
	close(f.stop)
	f.mu.Lock()
	down := f.onDown
	f.mu.Unlock()
	if down != nil {
		down(f.local)
	}
	return nil
}

func (f *FakeMesh) LocalLinkID() LinkID { return f.local }

var _ MeshTransport = (*FakeMesh)(nil)

// FakeOverlay is an in-memory OverlayTransport for tests.
type FakeOverlay struct {
	mu        sync.Mutex
	status    OverlayStatus
	cb        func(fromPub, inner []byte)
	peer      *FakeOverlay
	localPub  []byte
}

// NewFakeOverlayPair returns two linked FakeOverlay transports.
func NewFakeOverlayPair(aPub, bPub []byte) (*FakeOverlay, *FakeOverlay) {
	a := &FakeOverlay{status: OverlayStatus{Running: true, BootstrapPercent: 100}, localPub: aPub}
	b := &FakeOverlay{status: OverlayStatus{Running: true, BootstrapPercent: 100}, localPub: bPub}
	a.peer = b
	b.peer = a
	return a, b
}

func (f *FakeOverlay) SendGiftWrapped(toPub []byte, inner []byte) error {
	f.mu.Lock()
	peer := f.peer
	f.mu.Unlock()
	if peer == nil {
		return nil
	}
	peer.mu.Lock()
	cb := peer.cb
	peer.mu.Unlock()
	if cb != nil {
		cb(f.localPub, inner)
	}
	return nil
}

func (f *FakeOverlay) OnGiftWrapped(cb func(fromPub, inner []byte)) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeOverlay) Subscribe(pub []byte)   {}
func (f *FakeOverlay) Unsubscribe(pub []byte) {}

func (f *FakeOverlay) Status() OverlayStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

var _ OverlayTransport = (*FakeOverlay)(nil)
