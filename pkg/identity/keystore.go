package identity

import (
	"sync"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// KeyStore is the secure local storage collaborator spec §4.2 treats as
// external (the mobile Keychain/Keystore). Only the interface this core
// needs from it is specified here.
type KeyStore interface {
	Load() (*Material, bool, error)
	Save(*Material) error
	Wipe() error
}

// Material is everything persisted about a node's long-lived identity.
type Material struct {
	Signing SigningKeypair
	Noise   NoisePrivateKey
	NoisePub NoisePublicKey
}

// MemoryKeyStore is an in-memory KeyStore, used in tests and by headless
// runs that don't need persistence across restarts.
type MemoryKeyStore struct {
	mu  sync.Mutex
	mat *Material
}

func NewMemoryKeyStore() *MemoryKeyStore { return &MemoryKeyStore{} }

func (s *MemoryKeyStore) Load() (*Material, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mat == nil {
		return nil, false, nil
	}
	cp := *s.mat
	return &cp, true, nil
}

func (s *MemoryKeyStore) Save(m *Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.mat = &cp
	return nil
}

func (s *MemoryKeyStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat = nil
	return nil
}

// Identity bundles a node's long-lived keys with its current ephemeral
// peer ID and provides the cold-start / panic-reset lifecycle of spec
// §4.2.
type Identity struct {
	mu sync.RWMutex

	store  KeyStore
	signing SigningKeypair
	noise   NoisePrivateKey
	noisePub NoisePublicKey
	peerID  wire.PeerID
}

// LoadOrCreate implements the "on cold start, both are generated and
// stored" behavior of spec §4.2: it loads persisted keys if present,
// otherwise generates and persists new ones. The peer ID is always fresh.
func LoadOrCreate(store KeyStore) (*Identity, error) {
	id := &Identity{store: store}

	mat, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		signing, err := GenerateSigningKeypair()
		if err != nil {
			return nil, err
		}
		noisePriv, noisePub, err := GenerateNoiseKeypair()
		if err != nil {
			return nil, err
		}
		mat = &Material{Signing: signing, Noise: noisePriv, NoisePub: noisePub}
		if err := store.Save(mat); err != nil {
			return nil, err
		}
	}
	id.signing = mat.Signing
	id.noise = mat.Noise
	id.noisePub = mat.NoisePub

	peerID, err := NewPeerID()
	if err != nil {
		return nil, err
	}
	id.peerID = peerID

	return id, nil
}

func (id *Identity) PeerID() wire.PeerID {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.peerID
}

func (id *Identity) SigningPublicKey() []byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return append([]byte(nil), id.signing.Public...)
}

func (id *Identity) NoisePublicKey() NoisePublicKey {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.noisePub
}

func (id *Identity) NoisePrivateKey() NoisePrivateKey {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.noise
}

func (id *Identity) Fingerprint() string {
	return Fingerprint(id.NoisePublicKey())
}

// Sign signs canonical packet bytes with the node's signing key.
func (id *Identity) Sign(canonical []byte) []byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.signing.Sign(canonical)
}

// RotatePeerID generates a new ephemeral peer ID, per the rotation
// policy a node may apply at any time (spec §3).
func (id *Identity) RotatePeerID() (wire.PeerID, error) {
	newID, err := NewPeerID()
	if err != nil {
		return wire.PeerID{}, err
	}
	id.mu.Lock()
	id.peerID = newID
	id.mu.Unlock()
	return newID, nil
}

// PanicReset wipes both keypairs from the key store and this in-memory
// identity, then generates a brand new identity and peer ID (spec §4.2,
// §7: "Panic reset clears keys ... atomically").
func (id *Identity) PanicReset() error {
	id.mu.Lock()
	defer id.mu.Unlock()

	if err := id.store.Wipe(); err != nil {
		return err
	}

	signing, err := GenerateSigningKeypair()
	if err != nil {
		return err
	}
	noisePriv, noisePub, err := GenerateNoiseKeypair()
	if err != nil {
		return err
	}
	if err := id.store.Save(&Material{Signing: signing, Noise: noisePriv, NoisePub: noisePub}); err != nil {
		return err
	}
	peerID, err := NewPeerID()
	if err != nil {
		return err
	}

	id.signing = signing
	id.noise = noisePriv
	id.noisePub = noisePub
	id.peerID = peerID
	return nil
}
