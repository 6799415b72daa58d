package handler

import (
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// Finalize stamps version/timestamp/sender ID/signature onto pkt and
// encodes it to wire bytes, ready to hand to a transport. The sender ID is
// always id's peer ID; pkt.TTL and pkt.Payload must already be set by the
// caller.
func Finalize(id *identity.Identity, pkt *wire.Packet, now time.Time) ([]byte, error) {
	pkt.Version = wire.Version
	pkt.TimestampMS = uint64(now.UnixMilli())
	pkt.SenderID = id.PeerID()
	pkt.Flags |= wire.FlagHasSignature

	if compressible(pkt.Type) {
		if out, ok := wire.MaybeCompress(pkt.Payload); ok {
			pkt.Payload = out
			pkt.Flags |= wire.FlagIsCompressed
		}
	}

	canonical, err := wire.CanonicalForSigning(pkt)
	if err != nil {
		return nil, err
	}
	sig := id.Sign(canonical)
	copy(pkt.Signature[:], sig)

	return wire.Encode(pkt)
}

// compressible reports whether typ's payload is plaintext worth running
// through MaybeCompress — NOISE_HANDSHAKE and NOISE_ENCRYPTED already
// carry high-entropy Noise wire bytes that never clear MaybeCompress's
// savings threshold, so there is no point spending a DEFLATE pass on them.
func compressible(typ wire.MessageType) bool {
	switch typ {
	case wire.MessageTypeAnnounce, wire.MessageTypeMessage, wire.MessageTypeLeave:
		return true
	default:
		return false
	}
}

// BuildAnnounce constructs an ANNOUNCE packet carrying this node's
// nickname, static Noise key, signing key, and (if non-empty) a GOSSIP
// TLV of direct neighbors (spec §3, §4.7).
func BuildAnnounce(id *identity.Identity, nickname string, neighbors []wire.PeerID) (*wire.Packet, error) {
	noisePub := id.NoisePublicKey()
	tlvs := []wire.TLV{
		{Type: uint8(wire.TLVNickname), Value: []byte(nickname)},
		{Type: uint8(wire.TLVNoisePublicKey), Value: noisePub[:]},
		{Type: uint8(wire.TLVSigningPublicKey), Value: id.SigningPublicKey()},
	}
	if len(neighbors) > 0 {
		tlvs = append(tlvs, wire.TLV{Type: uint8(wire.TLVGossip), Value: wire.EncodeGossipTLV(neighbors)})
	}
	payload, err := wire.EncodeTLVs(tlvs)
	if err != nil {
		return nil, err
	}
	return &wire.Packet{
		Type:        wire.MessageTypeAnnounce,
		TTL:         DefaultTTL,
		Payload:     payload,
		RecipientID: wire.BroadcastAddress,
	}, nil
}

// BuildMessage constructs a broadcast public MESSAGE packet carrying
// UTF-8 text (spec §4.7: "treat payload as UTF-8 public message").
func BuildMessage(text string) *wire.Packet {
	return &wire.Packet{
		Type:        wire.MessageTypeMessage,
		TTL:         DefaultTTL,
		Payload:     []byte(text),
		RecipientID: wire.BroadcastAddress,
	}
}

// BuildLeave constructs a broadcast LEAVE packet announcing a graceful
// departure.
func BuildLeave() *wire.Packet {
	return &wire.Packet{
		Type:        wire.MessageTypeLeave,
		TTL:         DefaultTTL,
		RecipientID: wire.BroadcastAddress,
	}
}

// BuildNoiseHandshake wraps a handshake message for recipient in a
// NOISE_HANDSHAKE packet. Handshake packets are never broadcast: they
// always carry an explicit recipient.
func BuildNoiseHandshake(recipient wire.PeerID, handshakeBytes []byte) *wire.Packet {
	return &wire.Packet{
		Type:        wire.MessageTypeNoiseHandshake,
		TTL:         DefaultTTL,
		Flags:       wire.FlagHasRecipient,
		Payload:     handshakeBytes,
		RecipientID: recipient,
	}
}

// BuildNoiseEncrypted wraps an already-encrypted transport message
// (nonce + ciphertext) addressed to recipient.
func BuildNoiseEncrypted(recipient wire.PeerID, nonce uint64, ciphertext []byte) *wire.Packet {
	return &wire.Packet{
		Type:        wire.MessageTypeNoiseEncrypted,
		TTL:         DefaultTTL,
		Flags:       wire.FlagHasRecipient,
		Payload:     EncodeNonceCiphertext(nonce, ciphertext),
		RecipientID: recipient,
	}
}

// BuildDeliveryAck constructs the noise-payload-layer body for a
// DELIVERY_ACK, to be encrypted by the caller's session and wrapped with
// BuildNoiseEncrypted.
func BuildDeliveryAck(msgID string) []byte {
	return EncodeNoisePayload(wire.NoisePayloadDeliveryAck, []byte(msgID))
}

// BuildReadReceipt constructs the noise-payload-layer body for a
// READ_RECEIPT.
func BuildReadReceipt(msgID string) []byte {
	return EncodeNoisePayload(wire.NoisePayloadReadReceipt, []byte(msgID))
}

// BuildPrivateMessage constructs the noise-payload-layer body for a
// PRIVATE_MESSAGE.
func BuildPrivateMessage(msgID, content string) ([]byte, error) {
	tlv, err := EncodePrivateMessageTLV(msgID, content)
	if err != nil {
		return nil, err
	}
	return EncodeNoisePayload(wire.NoisePayloadPrivateMessage, tlv), nil
}

// BuildFavoriteNotification constructs the noise-payload-layer body for a
// FAVORITE_NOTIFICATION; relayPub may be empty to signal un-favoriting.
func BuildFavoriteNotification(relayPub []byte) []byte {
	return EncodeNoisePayload(wire.NoisePayloadFavoriteNotification, relayPub)
}
