package wire

// Pad applies PKCS-style terminator padding to body, rounding up to the
// next multiple of PadMultiple, up to PadMaxSize (spec §4.1). Bodies at or
// above PadMaxSize are returned unchanged, since padding them further
// would only balloon an already-large payload without hiding its size
// class among anything smaller.
//
// The padding scheme appends a single 0x80 terminator byte followed by
// zero bytes up to the target length — the same terminator-byte
// convention spec.md calls "PKCS-style", distinguished from pure PKCS#7
// (which repeats the pad-length byte) so that an all-zero body of any
// length round-trips unambiguously.
func Pad(body []byte) []byte {
	if len(body) >= PadMaxSize {
		return body
	}
	target := nextMultiple(len(body)+1, PadMultiple)
	if target > PadMaxSize {
		target = PadMaxSize
	}
	out := make([]byte, target)
	copy(out, body)
	out[len(body)] = 0x80
	return out
}

// Unpad reverses Pad. If padded has no terminator byte (e.g. it was never
// padded, or is exactly PadMaxSize and therefore was left unpadded by
// Pad), padded is returned unchanged.
func Unpad(padded []byte) []byte {
	for i := len(padded) - 1; i >= 0; i-- {
		if padded[i] == 0x80 {
			return padded[:i]
		}
		if padded[i] != 0x00 {
			break
		}
	}
	return padded
}

func nextMultiple(n, m int) int {
	if n%m == 0 {
		return n
	}
	return n + (m - n%m)
}
