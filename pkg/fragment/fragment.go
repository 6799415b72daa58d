// Package fragment splits oversized packets into a FRAGMENT_START /
// FRAGMENT_CONTINUE / FRAGMENT_END sequence and reassembles them, with a
// bounded number of concurrent in-flight sets and a per-set timeout (spec
// §4.5). Grounded on the bounded-map-with-sweep shape of the teacher's
// ratelimiter package, and on the fragment buffer handling in the
// reference Linux BLE mesh provider (fragmentBuffer map keyed by set,
// cleaned up on a maintenance loop).
package fragment

import (
	"encoding/binary"
	"sync"
	"time"

	cryptorand "crypto/rand"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// Fragment is one piece of a split packet: {fragment_id, index, total,
// original_type, data} (spec §4.5).
type Fragment struct {
	ID           [FragmentIDSize]byte
	Index        uint16
	Total        uint16
	OriginalType wire.MessageType
	Data         []byte
}

// MessageType reports which wire type this fragment should be encoded as.
func (f Fragment) MessageType() wire.MessageType {
	switch {
	case f.Index == 0:
		return wire.MessageTypeFragmentStart
	case f.Index == f.Total-1:
		return wire.MessageTypeFragmentEnd
	default:
		return wire.MessageTypeFragmentContinue
	}
}

// Encode serializes a fragment's type-specific payload: fragment_id (8) +
// index (2) + total (2) + original_type (1) + data.
func (f Fragment) Encode() []byte {
	out := make([]byte, headerOverhead+len(f.Data))
	copy(out[0:FragmentIDSize], f.ID[:])
	binary.BigEndian.PutUint16(out[8:10], f.Index)
	binary.BigEndian.PutUint16(out[10:12], f.Total)
	out[12] = byte(f.OriginalType)
	copy(out[headerOverhead:], f.Data)
	return out
}

// DecodeFragment parses a fragment payload produced by Encode.
func DecodeFragment(data []byte) (Fragment, bool) {
	if len(data) < headerOverhead {
		return Fragment{}, false
	}
	var f Fragment
	copy(f.ID[:], data[0:FragmentIDSize])
	f.Index = binary.BigEndian.Uint16(data[8:10])
	f.Total = binary.BigEndian.Uint16(data[10:12])
	f.OriginalType = wire.MessageType(data[12])
	f.Data = append([]byte(nil), data[headerOverhead:]...)
	return f, true
}

// Split breaks an encoded packet body into a sequence of fragments if it
// exceeds Threshold, each carrying at most Threshold-headerOverhead bytes
// of payload. Split always returns at least one fragment set member when
// splitting is needed; callers should check len(out) > 1 or originalType
// against the caller's own size check to decide whether fragmentation was
// necessary at all (Split itself always fragments, for simplicity and
// testability).
//
// When the set is large enough to benefit (chooseProtector), Split also
// appends parity fragments carrying FEC shards generated from the data
// fragments. A parity fragment is addressed by Index >= Total and is
// otherwise indistinguishable on the wire from a CONTINUE fragment; a
// Reassembler recognizes it by deriving the same protector from Total.
func Split(originalType wire.MessageType, body []byte) ([]Fragment, error) {
	capacity := Threshold - headerOverhead
	total := (len(body) + capacity - 1) / capacity
	if total == 0 {
		total = 1
	}
	if total > 0xFFFF {
		return nil, ErrTooLarge
	}

	var id [FragmentIDSize]byte
	if _, err := cryptorand.Read(id[:]); err != nil {
		return nil, err
	}

	fragments := make([]Fragment, 0, total)
	shards := make([]Shard, total)
	for i := 0; i < total; i++ {
		start := i * capacity
		end := start + capacity
		if end > len(body) {
			end = len(body)
		}
		fragments = append(fragments, Fragment{
			ID:           id,
			Index:        uint16(i),
			Total:        uint16(total),
			OriginalType: originalType,
			Data:         body[start:end],
		})
		shards[i] = Shard(body[start:end])
	}

	if protector := chooseProtector(total); protector != nil {
		if encoded, err := protector.Encode(shards); err == nil {
			for i, parity := range encoded[total:] {
				fragments = append(fragments, Fragment{
					ID:           id,
					Index:        uint16(total + i),
					Total:        uint16(total),
					OriginalType: originalType,
					Data:         parity,
				})
			}
		}
	}
	return fragments, nil
}

type fragmentSet struct {
	total        uint16
	originalType wire.MessageType
	parts        [][]byte
	seen         map[uint16]bool
	received     int
	expiry       time.Time

	protector  Protector
	parity     [][]byte
	paritySeen int
}

// Reassembler tracks concurrent fragment sets and reconstructs the
// original packet body once every index has arrived.
type Reassembler struct {
	mu   sync.Mutex
	sets map[[FragmentIDSize]byte]*fragmentSet
}

func NewReassembler() *Reassembler {
	return &Reassembler{sets: make(map[[FragmentIDSize]byte]*fragmentSet)}
}

// Feed processes one incoming fragment. It returns (body, originalType,
// true) once the fragment completes its set; duplicate fragments for an
// already-seen index are silently dropped (spec §4.5). A fragment set
// that is missing data shards but has enough parity shards to reconstruct
// them (recoverLocked) completes without waiting for a retransmit.
func (r *Reassembler) Feed(f Fragment, now time.Time) ([]byte, wire.MessageType, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sets[f.ID]
	if !ok {
		if f.Index >= f.Total {
			// Late parity shard for a set that already completed (and was
			// evicted) or was swept; there is nothing left to recover.
			return nil, 0, false, nil
		}
		if f.Index != 0 {
			return nil, 0, false, ErrUnknownSet
		}
		if len(r.sets) >= MaxSets {
			r.evictOldestLocked()
		}
		set = &fragmentSet{
			total:        f.Total,
			originalType: f.OriginalType,
			parts:        make([][]byte, f.Total),
			seen:         make(map[uint16]bool, f.Total),
			expiry:       now.Add(SetTimeout),
			protector:    chooseProtector(int(f.Total)),
		}
		if set.protector != nil {
			set.parity = make([][]byte, set.protector.NumParityShards())
		}
		r.sets[f.ID] = set
	}

	if f.Index >= set.total {
		pi := int(f.Index) - int(set.total)
		if set.protector == nil || pi >= len(set.parity) {
			return nil, 0, false, ErrBadIndex
		}
		if set.parity[pi] != nil {
			return nil, 0, false, nil
		}
		set.parity[pi] = f.Data
		set.paritySeen++
	} else {
		if set.seen[f.Index] {
			return nil, 0, false, nil
		}
		set.seen[f.Index] = true
		set.parts[f.Index] = f.Data
		set.received++
	}

	if set.received < int(set.total) && !r.recoverLocked(set) {
		return nil, 0, false, nil
	}

	delete(r.sets, f.ID)
	totalLen := 0
	for _, p := range set.parts {
		totalLen += len(p)
	}
	body := make([]byte, 0, totalLen)
	for _, p := range set.parts {
		body = append(body, p...)
	}
	return body, set.originalType, true, nil
}

// recoverLocked attempts to fill in set's missing data shards from its
// parity shards, once enough of both have arrived. It never attempts to
// recover the final data shard (index total-1): that shard is typically
// shorter than the rest, and a fixed-shard-length FEC decode pads a
// recovered shard out to the longest shard in the set, which would
// fabricate trailing bytes onto a reassembled body instead of a genuine
// retransmit. Caller holds mu.
func (r *Reassembler) recoverLocked(set *fragmentSet) bool {
	if set.protector == nil || set.paritySeen == 0 {
		return false
	}
	missing := int(set.total) - set.received
	if missing == 0 {
		return true
	}
	if set.parts[set.total-1] == nil {
		return false
	}
	if missing > set.protector.NumParityShards() || set.paritySeen < missing {
		return false
	}

	received := make([]Shard, set.protector.TotalShards())
	for i := 0; i < int(set.total); i++ {
		if set.parts[i] != nil {
			received[i] = Shard(set.parts[i])
		}
	}
	for i, p := range set.parity {
		if p != nil {
			received[int(set.total)+i] = Shard(p)
		}
	}

	recovered, err := set.protector.Decode(received)
	if err != nil {
		return false
	}
	for i := 0; i < int(set.total); i++ {
		if set.parts[i] == nil {
			set.parts[i] = recovered[i]
			set.seen[uint16(i)] = true
		}
	}
	set.received = int(set.total)
	return true
}

// evictOldestLocked drops the fragment set with the earliest expiry to
// make room for a new START when MaxSets is already in use. Caller holds
// mu.
func (r *Reassembler) evictOldestLocked() {
	var oldestID [FragmentIDSize]byte
	var oldestExpiry time.Time
	first := true
	for id, set := range r.sets {
		if first || set.expiry.Before(oldestExpiry) {
			oldestID = id
			oldestExpiry = set.expiry
			first = false
		}
	}
	if !first {
		delete(r.sets, oldestID)
	}
}

// Sweep drops fragment sets that have been incomplete for longer than
// SetTimeout, returning the count dropped.
func (r *Reassembler) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for id, set := range r.sets {
		if now.After(set.expiry) {
			delete(r.sets, id)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of fragment sets currently in flight.
func (r *Reassembler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}

// Clear drops every in-flight fragment set at once, as part of a panic
// reset (spec §7).
func (r *Reassembler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = make(map[[FragmentIDSize]byte]*fragmentSet)
}
