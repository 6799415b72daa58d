package wire

import (
	"encoding/binary"
)

// headerSize is the size of the fixed-layout prefix before sender_id:
// version + type + ttl + timestamp_ms + flags + payload_len.
const headerSize = 1 + 1 + 1 + 8 + 1 + 2

// Encode serializes p into its wire representation. The caller is
// responsible for ensuring p.Payload does not exceed MaxPayload; Encode
// returns ErrPayloadTooLarge otherwise.
func Encode(p *Packet) ([]byte, error) {
	return encode(p, true)
}

// CanonicalForSigning returns the encoding of p with the signature flag
// cleared and the signature field omitted — the exact byte sequence a
// sender signs and a recipient recomputes to verify (spec §3/§4.1). The
// route TLV, if present, is part of these bytes, matching the Open
// Question resolution in spec §9.
func CanonicalForSigning(p *Packet) ([]byte, error) {
	return encode(p, false)
}

func encode(p *Packet, includeSignature bool) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}

	flags := p.Flags
	if !includeSignature {
		flags &^= FlagHasSignature
	}

	size := headerSize + PeerIDSize
	if flags.Has(FlagHasRecipient) {
		size += PeerIDSize
	}
	size += len(p.Payload)
	if flags.Has(FlagHasRoute) {
		size += 1 + len(p.Route)*PeerIDSize
	}
	if includeSignature && flags.Has(FlagHasSignature) {
		size += SignatureSize
	}
	if size > MaxPacket {
		return nil, ErrPayloadTooLarge
	}

	out := make([]byte, 0, size)
	out = append(out, Version, byte(p.Type), p.TTL)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], p.TimestampMS)
	out = append(out, ts[:]...)

	out = append(out, byte(flags))

	var pl [2]byte
	binary.BigEndian.PutUint16(pl[:], uint16(len(p.Payload)))
	out = append(out, pl[:]...)

	out = append(out, p.SenderID[:]...)
	if flags.Has(FlagHasRecipient) {
		out = append(out, p.RecipientID[:]...)
	}
	out = append(out, p.Payload...)

	if flags.Has(FlagHasRoute) {
		if len(p.Route) > MaxRouteHops {
			return nil, ErrRouteCountInvalid
		}
		out = append(out, byte(len(p.Route)))
		for _, hop := range p.Route {
			out = append(out, hop[:]...)
		}
	}

	if includeSignature && flags.Has(FlagHasSignature) {
		out = append(out, p.Signature[:]...)
	}

	return out, nil
}

// Decode parses a wire packet. It never returns a Packet with a payload
// larger than MaxPayload.
func Decode(data []byte) (*Packet, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}

	version := data[0]
	if version != Version {
		return nil, ErrUnknownVersion
	}

	p := &Packet{
		Version: version,
		Type:    MessageType(data[1]),
		TTL:     data[2],
	}
	p.TimestampMS = binary.BigEndian.Uint64(data[3:11])
	p.Flags = Flags(data[11])
	payloadLen := int(binary.BigEndian.Uint16(data[12:14]))
	if payloadLen > MaxPayload {
		return nil, ErrPayloadTooLarge
	}

	rest := data[headerSize:]
	if len(rest) < PeerIDSize {
		return nil, ErrTruncated
	}
	copy(p.SenderID[:], rest[:PeerIDSize])
	rest = rest[PeerIDSize:]

	if p.Flags.Has(FlagHasRecipient) {
		if len(rest) < PeerIDSize {
			return nil, ErrTruncated
		}
		copy(p.RecipientID[:], rest[:PeerIDSize])
		rest = rest[PeerIDSize:]
	}

	if len(rest) < payloadLen {
		return nil, ErrTruncated
	}
	p.Payload = append([]byte(nil), rest[:payloadLen]...)
	rest = rest[payloadLen:]

	if p.Flags.Has(FlagHasRoute) {
		if len(rest) < 1 {
			return nil, ErrTruncated
		}
		count := int(rest[0])
		rest = rest[1:]
		if count > MaxRouteHops {
			return nil, ErrRouteCountInvalid
		}
		if len(rest) < count*PeerIDSize {
			return nil, ErrTruncated
		}
		p.Route = make([]PeerID, count)
		for i := 0; i < count; i++ {
			copy(p.Route[i][:], rest[:PeerIDSize])
			rest = rest[PeerIDSize:]
		}
	}

	if p.Flags.Has(FlagHasSignature) {
		if len(rest) < SignatureSize {
			return nil, ErrTruncated
		}
		copy(p.Signature[:], rest[:SignatureSize])
		rest = rest[SignatureSize:]
	}

	if len(rest) != 0 {
		return nil, ErrBadFlags
	}

	return p, nil
}
