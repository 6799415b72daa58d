package wire

import (
	"bytes"
	"compress/flate"
	"io"
)

// MaybeCompress compresses payload with DEFLATE if it is at least
// CompressThreshold bytes and compression saves at least
// CompressMinSavingsPct percent (spec §4.1). It reports whether the
// returned bytes are the compressed form.
func MaybeCompress(payload []byte) (out []byte, compressed bool) {
	if len(payload) < CompressThreshold {
		return payload, false
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return payload, false
	}
	if _, err := w.Write(payload); err != nil {
		return payload, false
	}
	if err := w.Close(); err != nil {
		return payload, false
	}

	savingsPct := (len(payload) - buf.Len()) * 100 / len(payload)
	if savingsPct < CompressMinSavingsPct {
		return payload, false
	}
	return buf.Bytes(), true
}

// Decompress reverses MaybeCompress.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}
