// Package wire implements the mesh binary packet format: encoding,
// decoding, canonical signing bytes, padding, and optional compression.
package wire

const (
	// Version is the only wire version this implementation understands.
	Version = 1

	// MaxPacket is the largest encoded packet this implementation will
	// produce or accept.
	MaxPacket = 65535

	// MaxPayload is the largest payload a packet may carry.
	MaxPayload = 65000

	// PeerIDSize is the size in bytes of an ephemeral peer identifier.
	PeerIDSize = 8

	// SignatureSize is the size in bytes of an Ed25519 signature.
	SignatureSize = 64

	// CompressThreshold is the minimum payload size eligible for
	// compression.
	CompressThreshold = 256

	// CompressMinSavingsPct is the minimum percentage reduction required
	// for a compressed payload to be used over the raw one.
	CompressMinSavingsPct = 10

	// PadMultiple is the block size padding rounds up to below
	// PadMaxSize.
	PadMultiple = 256

	// PadMaxSize is the largest size padding will round up to; bodies
	// already at or above this size are left unpadded.
	PadMaxSize = 4096

	// MaxGossipPeers is the maximum number of peer IDs carried in a
	// GOSSIP TLV.
	MaxGossipPeers = 10

	// MaxRouteHops bounds the intermediate hop count carried in a route
	// TLV (ttl is itself capped at 7, so a route can never legitimately
	// be longer than that).
	MaxRouteHops = 7
)

// BroadcastAddress is the reserved all-ones 8-byte sentinel recipient used
// for non-addressed (flooded) packets.
var BroadcastAddress = PeerID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// PeerID is an 8-byte ephemeral mesh identifier.
type PeerID [PeerIDSize]byte

// IsBroadcast reports whether id is the reserved broadcast sentinel.
func (id PeerID) IsBroadcast() bool {
	return id == BroadcastAddress
}

// Less reports whether id sorts lexicographically before other; used by the
// Noise tie-break rule (spec §4.3).
func (id PeerID) Less(other PeerID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

func (id PeerID) String() string {
	const hextable = "0123456789abcdef"
	var buf [PeerIDSize * 2]byte
	for i, b := range id {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf[:])
}

// MessageType is the wire packet type discriminant (spec §6.1).
type MessageType uint8

const (
	MessageTypeAnnounce          MessageType = 0x01
	MessageTypeLeave             MessageType = 0x03
	MessageTypeMessage           MessageType = 0x04
	MessageTypeFragmentStart     MessageType = 0x05
	MessageTypeFragmentContinue  MessageType = 0x06
	MessageTypeFragmentEnd       MessageType = 0x07
	MessageTypeDeliveryAck       MessageType = 0x0A
	MessageTypeReadReceipt       MessageType = 0x0B
	MessageTypeNoiseHandshake    MessageType = 0x10
	MessageTypeNoiseEncrypted    MessageType = 0x11
)

// Known reports whether t is a type this implementation understands.
func (t MessageType) Known() bool {
	switch t {
	case MessageTypeAnnounce, MessageTypeLeave, MessageTypeMessage,
		MessageTypeFragmentStart, MessageTypeFragmentContinue, MessageTypeFragmentEnd,
		MessageTypeDeliveryAck, MessageTypeReadReceipt,
		MessageTypeNoiseHandshake, MessageTypeNoiseEncrypted:
		return true
	}
	return false
}

func (t MessageType) IsFragment() bool {
	return t == MessageTypeFragmentStart || t == MessageTypeFragmentContinue || t == MessageTypeFragmentEnd
}

// NoisePayloadType discriminates the plaintext carried inside a
// NOISE_ENCRYPTED packet once decrypted (spec §3/§6.1).
type NoisePayloadType uint8

const (
	NoisePayloadPrivateMessage       NoisePayloadType = 0x01
	NoisePayloadReadReceipt          NoisePayloadType = 0x02
	NoisePayloadDeliveryAck          NoisePayloadType = 0x03
	NoisePayloadFavoriteNotification NoisePayloadType = 0x04
)

// TLVType enumerates the identity-announcement TLV field types (spec §3).
type TLVType uint8

const (
	TLVNickname         TLVType = 0x01
	TLVNoisePublicKey   TLVType = 0x02
	TLVSigningPublicKey TLVType = 0x03
	TLVGossip           TLVType = 0x04
)

// PrivateMessageTLVType enumerates the fields of a private message TLV
// (spec §3).
type PrivateMessageTLVType uint8

const (
	PrivateMessageTLVMessageID PrivateMessageTLVType = 0x01
	PrivateMessageTLVContent  PrivateMessageTLVType = 0x02
)

// Flags is the packet flag bitset (spec §3).
type Flags uint8

const (
	FlagHasRecipient Flags = 1 << iota
	FlagHasSignature
	FlagIsCompressed
	FlagHasRoute
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }
