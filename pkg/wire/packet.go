package wire

// Packet is the in-memory representation of the mesh wire packet described
// in spec §3. Field order here matches wire order; Encode/Decode are the
// only code that needs to know the byte layout.
type Packet struct {
	Version     uint8
	Type        MessageType
	TTL         uint8
	TimestampMS uint64
	Flags       Flags
	SenderID    PeerID
	RecipientID PeerID // valid only if Flags.Has(FlagHasRecipient)
	Payload     []byte
	Route       []PeerID // valid only if Flags.Has(FlagHasRoute)
	Signature   [SignatureSize]byte
}

// HasRecipient reports whether p carries an addressed recipient rather
// than being a flood/broadcast packet.
func (p *Packet) HasRecipient() bool { return p.Flags.Has(FlagHasRecipient) }

// HasSignature reports whether p carries a trailing Ed25519 signature.
func (p *Packet) HasSignature() bool { return p.Flags.Has(FlagHasSignature) }

// IsCompressed reports whether p.Payload is LZ-style compressed on the
// wire (only meaningful before decode has run decompression).
func (p *Packet) IsCompressed() bool { return p.Flags.Has(FlagIsCompressed) }

// HasRoute reports whether p carries a source-route TLV.
func (p *Packet) HasRoute() bool { return p.Flags.Has(FlagHasRoute) }

// Clone returns a deep copy of p, safe to mutate independently.
func (p *Packet) Clone() *Packet {
	cp := *p
	if p.Payload != nil {
		cp.Payload = append([]byte(nil), p.Payload...)
	}
	if p.Route != nil {
		cp.Route = append([]PeerID(nil), p.Route...)
	}
	return &cp
}
