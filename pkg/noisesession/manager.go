package noisesession

import (
	"sync"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// Manager owns one Session per peer and enforces the tie-break rule so
// that a simultaneous mutual handshake attempt collapses to a single
// winner instead of two racing sessions (spec §4.3). Grounded on
// device.go's per-peer map-of-peers discipline (a single RWMutex-guarded
// map, peers individually locked for their own state transitions).
type Manager struct {
	mu      sync.RWMutex
	local   wire.PeerID
	static  identity.NoisePrivateKey
	peers   map[wire.PeerID]*Session
}

func NewManager(local wire.PeerID, static identity.NoisePrivateKey) *Manager {
	return &Manager{
		local:  local,
		static: static,
		peers:  make(map[wire.PeerID]*Session),
	}
}

func (m *Manager) sessionFor(peer wire.PeerID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.peers[peer]
	if !ok {
		s = newSession(peer, m.static)
		m.peers[peer] = s
	}
	return s
}

// Get returns the existing session for peer, if any, without creating one.
func (m *Manager) Get(peer wire.PeerID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.peers[peer]
	return s, ok
}

// shouldInitiate applies the tie-break rule: the peer with the
// lexicographically smaller ID is the initiator (spec §4.3: "tie-break:
// lexicographically smaller peer ID initiates").
func (m *Manager) shouldInitiate(peer wire.PeerID) bool {
	return m.local.Less(peer)
}

// StartHandshake begins (or restarts) a handshake with peer as initiator,
// applying the tie-break rule: if the local ID loses the tie-break, any
// existing session is left alone and no message is produced. No message
// is produced either while an initiator handshake is in flight or the
// session is already Established.
func (m *Manager) StartHandshake(peer wire.PeerID, now time.Time) ([]byte, error) {
	if !m.shouldInitiate(peer) {
		// We lose the tie-break; wait for the peer to initiate instead.
		return nil, nil
	}
	s := m.sessionFor(peer)
	if st := s.State(); st == HandshakingInitiator || st == Established {
		return nil, nil
	}
	return s.StartHandshake(now)
}

// HandleHandshakeInitiation processes an incoming first handshake message.
// If a local session is already Handshaking as initiator toward the same
// peer and we win the tie-break, the incoming initiation is coalesced
// (dropped) in favor of our own attempt.
func (m *Manager) HandleHandshakeInitiation(peer wire.PeerID, msg []byte, now time.Time) error {
	if existing, ok := m.Get(peer); ok {
		if existing.State() == HandshakingInitiator && m.shouldInitiate(peer) {
			return nil
		}
	}
	s := m.sessionFor(peer)
	return s.AcceptHandshake(msg, now)
}

// Advance feeds an incoming handshake message to the session and returns
// the next outgoing message, if any.
func (m *Manager) Advance(peer wire.PeerID, incoming []byte, now time.Time) ([]byte, error) {
	s, ok := m.Get(peer)
	if !ok {
		return nil, ErrPeerUnknown
	}
	return s.NextMessage(incoming, now)
}

// FinishResponder completes a responder-side handshake with the
// initiator's final message.
func (m *Manager) FinishResponder(peer wire.PeerID, final []byte, now time.Time) error {
	s, ok := m.Get(peer)
	if !ok {
		return ErrPeerUnknown
	}
	return s.FinishResponder(final, now)
}

// Encrypt encrypts plaintext for an Established session with peer.
func (m *Manager) Encrypt(peer wire.PeerID, plaintext []byte) ([]byte, uint64, error) {
	s, ok := m.Get(peer)
	if !ok {
		return nil, 0, ErrPeerUnknown
	}
	return s.Encrypt(plaintext)
}

// Decrypt decrypts ciphertext from an Established session with peer.
func (m *Manager) Decrypt(peer wire.PeerID, ciphertext []byte, nonce uint64) ([]byte, error) {
	s, ok := m.Get(peer)
	if !ok {
		return nil, ErrPeerUnknown
	}
	return s.Decrypt(ciphertext, nonce)
}

// Sweep walks every session, expiring timed-out handshakes and reporting
// which peers need a fresh handshake started (due to expiry or rekey).
// Intended to be called periodically by the node orchestrator (spec §5:
// a rekey-check timer).
func (m *Manager) Sweep(now time.Time) (needHandshake []wire.PeerID) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.peers))
	for _, s := range m.peers {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if s.Expired(now) {
			s.MarkExpired()
			needHandshake = append(needHandshake, s.peerID)
			continue
		}
		if s.NeedsRekey(now) {
			needHandshake = append(needHandshake, s.peerID)
		}
	}
	return needHandshake
}

// Remove drops a peer's session entirely, e.g. on PanicReset or peer
// departure.
func (m *Manager) Remove(peer wire.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peer)
}

// Clear drops every session at once, as part of a panic reset (spec
// §7: "clears keys, records, outboxes, and fragment buffers atomically").
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers = make(map[wire.PeerID]*Session)
}
