package wire

// TLV is a single {type, length, value} record as used by identity
// announcements and private message payloads (spec §3). Lengths are
// single bytes, so values are capped at 255 bytes.
type TLV struct {
	Type  uint8
	Value []byte
}

// EncodeTLVs serializes a sequence of TLVs back to back.
func EncodeTLVs(tlvs []TLV) ([]byte, error) {
	out := make([]byte, 0, len(tlvs)*2)
	for _, t := range tlvs {
		if len(t.Value) > 255 {
			return nil, ErrPayloadTooLarge
		}
		out = append(out, t.Type, byte(len(t.Value)))
		out = append(out, t.Value...)
	}
	return out, nil
}

// DecodeTLVs parses a sequence of TLVs. Unknown types are preserved in
// the returned slice — it is the caller's job to ignore ones it doesn't
// recognize (spec §3: "Unknown TLVs are ignored").
func DecodeTLVs(data []byte) ([]TLV, error) {
	var out []TLV
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, ErrTLVTruncated
		}
		typ := data[0]
		length := int(data[1])
		data = data[2:]
		if len(data) < length {
			return nil, ErrTLVTruncated
		}
		out = append(out, TLV{Type: typ, Value: append([]byte(nil), data[:length]...)})
		data = data[length:]
	}
	return out, nil
}

// FindTLV returns the first TLV of the given type, if any.
func FindTLV(tlvs []TLV, typ uint8) (TLV, bool) {
	for _, t := range tlvs {
		if t.Type == typ {
			return t, true
		}
	}
	return TLV{}, false
}

// EncodeGossipTLV concatenates up to MaxGossipPeers peer IDs into a
// GOSSIP TLV value (spec §3).
func EncodeGossipTLV(peers []PeerID) []byte {
	if len(peers) > MaxGossipPeers {
		peers = peers[:MaxGossipPeers]
	}
	out := make([]byte, 0, len(peers)*PeerIDSize)
	for _, p := range peers {
		out = append(out, p[:]...)
	}
	return out
}

// DecodeGossipTLV reverses EncodeGossipTLV.
func DecodeGossipTLV(value []byte) []PeerID {
	n := len(value) / PeerIDSize
	if n > MaxGossipPeers {
		n = MaxGossipPeers
	}
	out := make([]PeerID, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], value[i*PeerIDSize:(i+1)*PeerIDSize])
	}
	return out
}
