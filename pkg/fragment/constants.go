package fragment

import "time"

// Fragmentation parameters (spec §4.5).
const (
	// Threshold is the encoded packet size above which a packet is split
	// into fragments.
	Threshold = 512

	// MaxSets bounds the number of concurrent in-flight reassembly
	// buffers, so a flood of bogus fragment headers can't exhaust memory.
	MaxSets = 64

	// SetTimeout is how long an incomplete reassembly buffer is kept
	// before being dropped.
	SetTimeout = 30 * time.Second

	// FragmentIDSize is the size in bytes of a fragment set's identifier.
	FragmentIDSize = 8

	// headerOverhead is the per-fragment metadata size counted against
	// Threshold when deciding fragment payload capacity: fragment_id (8)
	// + index (2) + total (2) + original_type (1).
	headerOverhead = FragmentIDSize + 2 + 2 + 1

	// xorMaxShards bounds how large a fragment set may be while still
	// using single-parity XOR recovery (cheap, but only ever recovers one
	// lost shard).
	xorMaxShards = 8

	// reedSolomonMaxShards bounds Reed-Solomon shard counts comfortably
	// under the reedsolomon package's 256-total-shard ceiling once its
	// parity overhead is added.
	reedSolomonMaxShards = 200
)
