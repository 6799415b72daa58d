package handler

import (
	"encoding/binary"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// EncodeNoisePayload serializes the plaintext carried inside a
// NOISE_ENCRYPTED session: {noise_payload_type:u8, body} (spec §3).
func EncodeNoisePayload(typ wire.NoisePayloadType, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(typ)
	copy(out[1:], body)
	return out
}

// DecodeNoisePayload reverses EncodeNoisePayload.
func DecodeNoisePayload(data []byte) (wire.NoisePayloadType, []byte, error) {
	if len(data) < 1 {
		return 0, nil, ErrEmptyNoisePayload
	}
	return wire.NoisePayloadType(data[0]), data[1:], nil
}

// EncodeNonceCiphertext serializes the wire payload of a NOISE_ENCRYPTED
// packet: an explicit 8-byte big-endian nonce followed by ciphertext.
// Carrying the nonce explicitly (rather than relying on implicit
// ordering) is what lets the receive-side replay filter in
// pkg/noisesession tolerate BLE's unordered, lossy delivery.
func EncodeNonceCiphertext(nonce uint64, ciphertext []byte) []byte {
	out := make([]byte, 8+len(ciphertext))
	binary.BigEndian.PutUint64(out[:8], nonce)
	copy(out[8:], ciphertext)
	return out
}

// DecodeNonceCiphertext reverses EncodeNonceCiphertext.
func DecodeNonceCiphertext(data []byte) (nonce uint64, ciphertext []byte, err error) {
	if len(data) < 8 {
		return 0, nil, ErrTruncatedNoiseEnvelope
	}
	return binary.BigEndian.Uint64(data[:8]), data[8:], nil
}

// EncodePrivateMessageTLV builds the {MESSAGE_ID, CONTENT} TLV body of a
// PRIVATE_MESSAGE noise payload (spec §3).
func EncodePrivateMessageTLV(msgID, content string) ([]byte, error) {
	return wire.EncodeTLVs([]wire.TLV{
		{Type: uint8(wire.PrivateMessageTLVMessageID), Value: []byte(msgID)},
		{Type: uint8(wire.PrivateMessageTLVContent), Value: []byte(content)},
	})
}

// DecodePrivateMessageTLV reverses EncodePrivateMessageTLV.
func DecodePrivateMessageTLV(data []byte) (msgID, content string, err error) {
	tlvs, err := wire.DecodeTLVs(data)
	if err != nil {
		return "", "", err
	}
	if t, ok := wire.FindTLV(tlvs, uint8(wire.PrivateMessageTLVMessageID)); ok {
		msgID = string(t.Value)
	}
	if t, ok := wire.FindTLV(tlvs, uint8(wire.PrivateMessageTLVContent)); ok {
		content = string(t.Value)
	}
	return msgID, content, nil
}
