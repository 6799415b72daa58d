// Package identity owns the long-lived cryptographic identity of a node:
// its Ed25519 signing keypair, its X25519 static Noise keypair, and the
// ephemeral peer ID generator (spec §4.2).
package identity

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// NoiseKeySize is the size in bytes of an X25519 public or private key.
const NoiseKeySize = 32

// NoisePublicKey is a Curve25519 public key, used as a Noise static
// identity and as the basis of a peer's fingerprint.
type NoisePublicKey [NoiseKeySize]byte

// NoisePrivateKey is a clamped Curve25519 private scalar.
type NoisePrivateKey [NoiseKeySize]byte

func (k NoisePublicKey) Equal(o NoisePublicKey) bool {
	return subtle.ConstantTimeCompare(k[:], o[:]) == 1
}

func (k NoisePublicKey) Hex() string { return hex.EncodeToString(k[:]) }

func (k NoisePublicKey) IsZero() bool {
	var zero NoisePublicKey
	return k.Equal(zero)
}

// NoisePublicKeyFromHex parses a 64-hex-char Curve25519 public key.
func NoisePublicKeyFromHex(s string) (NoisePublicKey, error) {
	var k NoisePublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != NoiseKeySize {
		return k, fmt.Errorf("identity: noise public key must be %d bytes, got %d", NoiseKeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// clamp applies the Curve25519 scalar clamp (same convention as the
// teacher's wgcfg.PrivateKey.clamp / device/noise-types.go).
func (k *NoisePrivateKey) clamp() {
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
}

// GenerateNoiseKeypair creates a fresh clamped X25519 static keypair.
func GenerateNoiseKeypair() (NoisePrivateKey, NoisePublicKey, error) {
	var priv NoisePrivateKey
	if _, err := cryptorand.Read(priv[:]); err != nil {
		return priv, NoisePublicKey{}, err
	}
	priv.clamp()
	pub, err := priv.PublicKey()
	return priv, pub, err
}

// PublicKey derives the Curve25519 public key for priv.
func (k NoisePrivateKey) PublicKey() (NoisePublicKey, error) {
	var pub NoisePublicKey
	out, err := curve25519.X25519(k[:], curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], out)
	return pub, nil
}

// SharedSecret performs the Diffie-Hellman exchange between k and peer.
func (k NoisePrivateKey) SharedSecret(peer NoisePublicKey) ([]byte, error) {
	return curve25519.X25519(k[:], peer[:])
}

// SigningKeypair is a long-lived Ed25519 identity used to sign outgoing
// packets (spec §4.2).
type SigningKeypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateSigningKeypair creates a fresh Ed25519 keypair.
func GenerateSigningKeypair() (SigningKeypair, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return SigningKeypair{}, err
	}
	return SigningKeypair{Public: pub, Private: priv}, nil
}

// Sign signs canonical packet bytes.
func (kp SigningKeypair) Sign(canonical []byte) []byte {
	return ed25519.Sign(kp.Private, canonical)
}

// Verify checks a signature against a signing public key. It is a
// package-level function, not a method, because verification happens
// against peers' keys, not necessarily this node's own.
func Verify(pub ed25519.PublicKey, canonical, signature []byte) bool {
	return ed25519.Verify(pub, canonical, signature)
}

// Fingerprint derives the stable 64-hex-char fingerprint of a static
// Noise public key: SHA-256(static_noise_pub) (spec §3).
func Fingerprint(pub NoisePublicKey) string {
	sum := sha256.Sum256(pub[:])
	return hex.EncodeToString(sum[:])
}
