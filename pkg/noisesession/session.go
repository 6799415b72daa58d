package noisesession

import (
	"sync"
	"time"

	"github.com/flynn/noise"

	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// cipherSuite is the single Noise cipher suite used for every session in
// this node, matching the go-libp2p/portal/toxcore pack examples'
// DH25519+ChaChaPoly+SHA256 choice for a flynn/noise XX handshake.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// transportKeys holds the split send/receive cipher states for one
// direction pair, plus a replay filter on the receive side. Modeled on the
// teacher's KeyPair (keypair.go): a send nonce counter, a receive replay
// filter, and a created timestamp used for rekey/expiry decisions.
type transportKeys struct {
	send      noise.Cipher
	recv      noise.Cipher
	sendNonce uint64
	recvFilt  *replayFilter
	created   time.Time
	sentMsgs  uint64
}

// Session is one peer's Noise XX handshake/transport state machine. All
// mutation happens under mu; the manager serializes per-peer operations so
// only one handshake or rekey is ever in flight for a given peer (spec §5).
type Session struct {
	mu sync.Mutex

	peerID      wire.PeerID
	localStatic identity.NoisePrivateKey

	state       State
	isInitiator bool
	hs          *noise.HandshakeState
	keys        *transportKeys

	remoteStatic identity.NoisePublicKey
	handshakeAt  time.Time
	retryBackoff time.Duration
	lastErr      error
}

// newSession constructs a fresh, Uninitialized session for peerID.
func newSession(peerID wire.PeerID, local identity.NoisePrivateKey) *Session {
	return &Session{
		peerID:      peerID,
		localStatic: local,
		state:       Uninitialized,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemoteStatic returns the peer's Noise static public key, valid once the
// session has reached Established.
func (s *Session) RemoteStatic() (identity.NoisePublicKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Established {
		return identity.NoisePublicKey{}, false
	}
	return s.remoteStatic, true
}

func (s *Session) localDHKey() noise.DHKey {
	pub, err := s.localStatic.PublicKey()
	if err != nil {
		return noise.DHKey{Private: s.localStatic[:]}
	}
	return noise.DHKey{Private: s.localStatic[:], Public: pub[:]}
}

// StartHandshake initializes this session as the XX initiator and returns
// the first handshake message to send.
func (s *Session) StartHandshake(now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     true,
		StaticKeypair: s.localDHKey(),
	})
	if err != nil {
		return nil, err
	}
	s.hs = hs
	s.isInitiator = true
	s.state = HandshakingInitiator
	s.handshakeAt = now

	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		s.state = Failed
		s.lastErr = err
		return nil, err
	}
	return msg, nil
}

// AcceptHandshake initializes this session as the XX responder from the
// peer's first handshake message.
func (s *Session) AcceptHandshake(msg []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     false,
		StaticKeypair: s.localDHKey(),
	})
	if err != nil {
		return err
	}
	s.hs = hs
	s.isInitiator = false
	s.state = HandshakingResponder
	s.handshakeAt = now

	if _, _, _, err := hs.ReadMessage(nil, msg); err != nil {
		s.state = Failed
		s.lastErr = err
		return ErrAuthFailure
	}
	return nil
}

// NextMessage advances the handshake by one step given an incoming message
// (nil for the responder's turn, which only writes; the initiator's turn
// requires the responder's message). It
// returns the outgoing message, if any, for the caller to send.
func (s *Session) NextMessage(incoming []byte, now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsHandshaking() {
		return nil, ErrWrongState
	}
	if s.hs == nil {
		return nil, ErrWrongState
	}

	if s.isInitiator {
		// Initiator turn 2: read responder's message, then write the
		// final (static key + payload) message.
		if incoming == nil {
			return nil, ErrWrongState
		}
		_, _, _, err := s.hs.ReadMessage(nil, incoming)
		if err != nil {
			s.state = Failed
			s.lastErr = err
			return nil, ErrAuthFailure
		}
		out, cs1, cs2, err := s.hs.WriteMessage(nil, nil)
		if err != nil {
			s.state = Failed
			s.lastErr = err
			return nil, err
		}
		s.finishHandshake(cs1, cs2, now)
		return out, nil
	}

	// Responder turn 2: write the second message (e, ee, s, es), and
	// expect the caller to feed back the initiator's final
	// message via FinishResponder.
	out, cs1, cs2, err := s.hs.WriteMessage(nil, nil)
	if err != nil {
		s.state = Failed
		s.lastErr = err
		return nil, err
	}
	if cs1 != nil && cs2 != nil {
		// XX never splits on the responder's second message; defensive.
		s.finishHandshake(cs1, cs2, now)
	}
	return out, nil
}

// FinishResponder consumes the initiator's final handshake message,
// completing the responder side of the exchange.
func (s *Session) FinishResponder(final []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != HandshakingResponder || s.hs == nil {
		return ErrWrongState
	}
	_, cs1, cs2, err := s.hs.ReadMessage(nil, final)
	if err != nil {
		s.state = Failed
		s.lastErr = err
		return ErrAuthFailure
	}
	s.finishHandshake(cs1, cs2, now)
	return nil
}

// finishHandshake splits the handshake into transport cipher states and
// records the peer's static key. Caller holds mu.
func (s *Session) finishHandshake(cs1, cs2 *noise.CipherState, now time.Time) {
	var remote identity.NoisePublicKey
	copy(remote[:], s.hs.PeerStatic())
	s.remoteStatic = remote

	keys := &transportKeys{created: now, recvFilt: newReplayFilter()}
	if s.isInitiator {
		keys.send, keys.recv = cs1.Cipher(), cs2.Cipher()
	} else {
		keys.send, keys.recv = cs2.Cipher(), cs1.Cipher()
	}
	s.keys = keys
	s.state = Established
	s.hs = nil
	s.retryBackoff = 0
}

// NeedsRekey reports whether this session has been Established long
// enough, or sent enough messages, to warrant a fresh handshake (spec
// §4.3: REKEY_INTERVAL / REKEY_MESSAGES).
func (s *Session) NeedsRekey(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Established || s.keys == nil {
		return false
	}
	if now.Sub(s.keys.created) >= RekeyInterval {
		return true
	}
	return s.keys.sentMsgs >= RekeyMessages
}

// Expired reports whether a handshake in progress has exceeded
// HandshakeTimeout and should be torn down.
func (s *Session) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsHandshaking() {
		return false
	}
	return now.Sub(s.handshakeAt) > HandshakeTimeout
}

// MarkExpired transitions a timed-out handshake to Expired and returns the
// backoff the caller should wait before retrying.
func (s *Session) MarkExpired() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Expired
	s.retryBackoff = NextBackoff(s.retryBackoff)
	return s.retryBackoff
}

// Encrypt authenticates and encrypts plaintext for transport, returning
// ciphertext and the explicit nonce the caller must carry alongside it on
// the wire (spec §4.3: AEAD transport messages once Established). Using
// the low-level noise.Cipher directly, rather than noise.CipherState's
// auto-incrementing Encrypt/Decrypt, lets nonces survive BLE's unordered,
// lossy delivery the way WireGuard's own keypair counters do.
func (s *Session) Encrypt(plaintext []byte) (ciphertext []byte, nonce uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Established || s.keys == nil {
		return nil, 0, ErrNotEstablished
	}
	n := s.keys.sendNonce
	out := s.keys.send.Encrypt(nil, n, nil, wire.Pad(plaintext))
	s.keys.sendNonce++
	s.keys.sentMsgs++
	return out, n, nil
}

// Decrypt validates replay status via the receive-side nonce filter,
// decrypts ciphertext using the explicit nonce carried alongside it, and
// strips the padding Encrypt applied before encryption (spec §4.1).
func (s *Session) Decrypt(ciphertext []byte, nonce uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Established || s.keys == nil {
		return nil, ErrNotEstablished
	}
	if !s.keys.recvFilt.validate(nonce) {
		return nil, ErrNonceReuse
	}
	plaintext, err := s.keys.recv.Decrypt(nil, nonce, nil, ciphertext)
	if err != nil {
		return nil, err
	}
	return wire.Unpad(plaintext), nil
}
