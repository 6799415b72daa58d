package fragment

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
	"github.com/xssnick/raptorq"
)

// Shard is one erasure-coded piece of a fragment set, renamed from the
// teacher's IP-packet-oriented Packet type to fit BLE fragment shards.
type Shard []byte

// Algorithm identifies which FEC scheme produced a set of shards, adapted
// directly from the teacher's fec.FECAlgorithmType.
type Algorithm uint8

const (
	AlgorithmNone Algorithm = iota
	AlgorithmXOR
	AlgorithmReedSolomon
	AlgorithmRaptorQ
)

// Protector is the common FEC interface, adapted from the teacher's
// fec.FECProtector: encode a fixed number of data shards into data+parity
// shards, and decode back given however many of those shards survived
// (nil entries are erasures).
type Protector interface {
	Algorithm() Algorithm
	NumDataShards() int
	NumParityShards() int
	TotalShards() int
	Encode(data []Shard) ([]Shard, error)
	Decode(received []Shard) ([]Shard, error)
}

// chooseProtector picks a FEC scheme for a fragment set of total data
// shards, purely as a function of total so the sender and the receiver
// derive the identical scheme without carrying any extra selector bytes
// on the wire. Small sets get cheap single-parity XOR, mid-sized sets get
// Reed-Solomon, and sets too large for Reed-Solomon's shard ceiling fall
// back to RaptorQ's fountain coding (spec §4.5). Returns nil when total is
// too small to protect or the chosen scheme fails to construct, in which
// case the fragment set carries no parity shards at all.
func chooseProtector(total int) Protector {
	switch {
	case total < 2:
		return nil
	case total <= xorMaxShards:
		p, err := NewXORProtector(total)
		if err != nil {
			return nil
		}
		return p
	case total <= reedSolomonMaxShards:
		parity := total/10 + 1
		p, err := NewReedSolomonProtector(total, parity)
		if err != nil {
			return nil
		}
		return p
	default:
		p, err := NewRaptorQProtector(total, uint16(Threshold-headerOverhead))
		if err != nil {
			return nil
		}
		return p
	}
}

// xorProtector is a 1-parity-shard XOR scheme for small fragment sets
// where a single lost BLE notification is the common case. Adapted
// file-for-file from the teacher's fec/xor.go.
type xorProtector struct {
	dataShards int
}

func NewXORProtector(dataShards int) (Protector, error) {
	if dataShards <= 0 {
		return nil, errors.New("fragment: XOR data shard count must be positive")
	}
	return &xorProtector{dataShards: dataShards}, nil
}

func (x *xorProtector) Algorithm() Algorithm    { return AlgorithmXOR }
func (x *xorProtector) NumDataShards() int      { return x.dataShards }
func (x *xorProtector) NumParityShards() int    { return 1 }
func (x *xorProtector) TotalShards() int        { return x.dataShards + 1 }

func (x *xorProtector) Encode(data []Shard) ([]Shard, error) {
	if len(data) != x.dataShards {
		return nil, fmt.Errorf("fragment: XOR encode expected %d shards, got %d", x.dataShards, len(data))
	}
	maxLen := 0
	for _, p := range data {
		if p == nil {
			return nil, errors.New("fragment: XOR encode got a nil source shard")
		}
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	parity := make(Shard, maxLen)
	padded := make(Shard, maxLen)
	for _, p := range data {
		copy(padded, p)
		for i := len(p); i < maxLen; i++ {
			padded[i] = 0
		}
		for i := 0; i < maxLen; i++ {
			parity[i] ^= padded[i]
		}
	}
	out := make([]Shard, x.dataShards+1)
	copy(out, data)
	out[x.dataShards] = parity
	return out, nil
}

func (x *xorProtector) Decode(received []Shard) ([]Shard, error) {
	if len(received) != x.dataShards+1 {
		return nil, fmt.Errorf("fragment: XOR decode expected %d shards, got %d", x.dataShards+1, len(received))
	}
	missing := -1
	maxLen := 0
	for i, p := range received {
		if p == nil {
			if missing >= 0 {
				return nil, errors.New("fragment: XOR decode cannot recover more than one missing shard")
			}
			missing = i
			continue
		}
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	if missing < 0 {
		return received[:x.dataShards], nil
	}
	recovered := make(Shard, maxLen)
	padded := make(Shard, maxLen)
	for i, p := range received {
		if i == missing {
			continue
		}
		copy(padded, p)
		for j := len(p); j < maxLen; j++ {
			padded[j] = 0
		}
		for j := 0; j < maxLen; j++ {
			recovered[j] ^= padded[j]
		}
	}
	out := make([]Shard, x.dataShards)
	for i := 0; i < x.dataShards; i++ {
		if i == missing {
			out[i] = recovered
		} else {
			out[i] = received[i]
		}
	}
	return out, nil
}

// rsProtector wraps github.com/klauspost/reedsolomon, adapted from the
// teacher's fec/reedsolomon.go for fragment sets large enough to benefit
// from multi-shard recovery.
type rsProtector struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

func NewReedSolomonProtector(dataShards, parityShards int) (Protector, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("fragment: reed-solomon encoder: %w", err)
	}
	return &rsProtector{enc: enc, dataShards: dataShards, parityShards: parityShards}, nil
}

func (rs *rsProtector) Algorithm() Algorithm    { return AlgorithmReedSolomon }
func (rs *rsProtector) NumDataShards() int      { return rs.dataShards }
func (rs *rsProtector) NumParityShards() int    { return rs.parityShards }
func (rs *rsProtector) TotalShards() int        { return rs.dataShards + rs.parityShards }

func (rs *rsProtector) Encode(data []Shard) ([]Shard, error) {
	if len(data) != rs.dataShards {
		return nil, fmt.Errorf("fragment: RS encode expected %d shards, got %d", rs.dataShards, len(data))
	}
	maxLen := 0
	for _, p := range data {
		if p == nil {
			return nil, errors.New("fragment: RS encode got a nil source shard")
		}
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	shards := make([][]byte, rs.dataShards+rs.parityShards)
	for i, p := range data {
		padded := make([]byte, maxLen)
		copy(padded, p)
		shards[i] = padded
	}
	for i := rs.dataShards; i < len(shards); i++ {
		shards[i] = make([]byte, maxLen)
	}
	if err := rs.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("fragment: reed-solomon encode: %w", err)
	}
	out := make([]Shard, len(shards))
	for i, s := range shards {
		out[i] = Shard(s)
	}
	return out, nil
}

func (rs *rsProtector) Decode(received []Shard) ([]Shard, error) {
	if len(received) != rs.dataShards+rs.parityShards {
		return nil, fmt.Errorf("fragment: RS decode expected %d shards, got %d", rs.dataShards+rs.parityShards, len(received))
	}
	maxLen := 0
	for _, p := range received {
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	shards := make([][]byte, len(received))
	missing := 0
	for i, p := range received {
		if p == nil {
			missing++
			continue
		}
		padded := make([]byte, maxLen)
		copy(padded, p)
		shards[i] = padded
	}
	if missing > rs.parityShards {
		return nil, fmt.Errorf("fragment: RS decode cannot recover %d missing shards with %d parity shards", missing, rs.parityShards)
	}
	if missing == 0 {
		return received[:rs.dataShards], nil
	}
	if err := rs.enc.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("fragment: reed-solomon reconstruct: %w", err)
	}
	out := make([]Shard, rs.dataShards)
	for i := 0; i < rs.dataShards; i++ {
		out[i] = Shard(shards[i])
	}
	return out, nil
}

// rqProtector wraps github.com/xssnick/raptorq as a fountain code for
// fragment sets too large or too loss-prone for fixed-overhead RS parity.
// Adapted from the teacher's fec/raptorq.go, which generates exactly
// NumDataShards repair symbols alongside the source symbols; decode tries
// each added symbol until the decoder reports success or runs out.
type rqProtector struct {
	rq         raptorq.RaptorQ
	dataShards int
	symbolSize uint16
}

func NewRaptorQProtector(dataShards int, symbolSize uint16) (Protector, error) {
	if dataShards <= 0 {
		return nil, errors.New("fragment: RaptorQ data shard count must be positive")
	}
	if symbolSize == 0 {
		return nil, errors.New("fragment: RaptorQ symbol size must be positive")
	}
	return &rqProtector{
		rq:         raptorq.NewRaptorQ(symbolSize),
		dataShards: dataShards,
		symbolSize: symbolSize,
	}, nil
}

func (r *rqProtector) Algorithm() Algorithm    { return AlgorithmRaptorQ }
func (r *rqProtector) NumDataShards() int      { return r.dataShards }
func (r *rqProtector) NumParityShards() int    { return r.dataShards }
func (r *rqProtector) TotalShards() int        { return r.dataShards * 2 }

func (r *rqProtector) Encode(data []Shard) ([]Shard, error) {
	if len(data) != r.dataShards {
		return nil, fmt.Errorf("fragment: RaptorQ encode expected %d shards, got %d", r.dataShards, len(data))
	}
	payload := make([]byte, 0, r.dataShards*int(r.symbolSize))
	for i, p := range data {
		if len(p) > int(r.symbolSize) {
			return nil, fmt.Errorf("fragment: RaptorQ shard %d length %d exceeds symbol size %d", i, len(p), r.symbolSize)
		}
		padded := make([]byte, r.symbolSize)
		copy(padded, p)
		payload = append(payload, padded...)
	}
	enc, err := r.rq.CreateEncoder(payload)
	if err != nil {
		return nil, fmt.Errorf("fragment: RaptorQ encoder: %w", err)
	}
	out := make([]Shard, 0, r.dataShards*2)
	for i := uint32(0); i < uint32(r.dataShards)*2; i++ {
		out = append(out, Shard(enc.GenSymbol(i)))
	}
	return out, nil
}

func (r *rqProtector) Decode(received []Shard) ([]Shard, error) {
	payloadLen := uint64(r.dataShards) * uint64(r.symbolSize)
	dec, err := r.rq.CreateDecoder(payloadLen)
	if err != nil {
		return nil, fmt.Errorf("fragment: RaptorQ decoder: %w", err)
	}
	for i, s := range received {
		if s == nil {
			continue
		}
		canTry, err := dec.AddSymbol(uint32(i), s)
		if err != nil {
			continue
		}
		if !canTry {
			continue
		}
		ok, result, err := dec.Decode()
		if err != nil {
			return nil, fmt.Errorf("fragment: RaptorQ decode: %w", err)
		}
		if !ok {
			continue
		}
		out := make([]Shard, r.dataShards)
		for j := 0; j < r.dataShards; j++ {
			start := j * int(r.symbolSize)
			end := start + int(r.symbolSize)
			if end > len(result) {
				return nil, errors.New("fragment: RaptorQ reconstructed payload too short")
			}
			out[j] = Shard(result[start:end])
		}
		return out, nil
	}
	return nil, errors.New("fragment: RaptorQ decode failed with the provided symbols")
}
