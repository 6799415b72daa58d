package noisesession

import "errors"

var (
	// ErrHandshakeTimeout is returned when a handshake fails to reach
	// Established within HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("noisesession: handshake timed out")

	// ErrAuthFailure is returned when a handshake message fails to
	// decrypt/authenticate, or the remote static key doesn't match an
	// already-pinned fingerprint.
	ErrAuthFailure = errors.New("noisesession: authentication failure")

	// ErrNonceReuse is returned when a transport message's nonce falls
	// outside the replay window or has already been seen.
	ErrNonceReuse = errors.New("noisesession: nonce reuse detected")

	// ErrPeerUnknown is returned when an operation references a peer with
	// no session.
	ErrPeerUnknown = errors.New("noisesession: peer unknown")

	// ErrNotEstablished is returned when Encrypt/Decrypt is attempted
	// before the session reaches Established.
	ErrNotEstablished = errors.New("noisesession: session not established")

	// ErrWrongState is returned when a handshake message arrives out of
	// sequence for the session's current state.
	ErrWrongState = errors.New("noisesession: handshake message out of sequence")
)
