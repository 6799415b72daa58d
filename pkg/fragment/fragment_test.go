package fragment

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

func TestSplitReassembleInOrder(t *testing.T) {
	body := bytes.Repeat([]byte("mesh"), 300) // > Threshold
	frags, err := Split(wire.MessageTypeMessage, body)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments for a %d-byte body", len(body))
	}

	r := NewReassembler()
	now := time.Now()
	var got []byte
	var ok bool
	for _, f := range frags {
		out, _, done, err := r.Feed(f, now)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if done {
			got, ok = out, true
		}
	}
	if !ok {
		t.Fatalf("expected reassembly to complete once every data fragment arrived")
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("reassembled body mismatch")
	}
}

func TestSplitReassembleOutOfOrder(t *testing.T) {
	body := bytes.Repeat([]byte("xyz"), 500)
	frags, err := Split(wire.MessageTypeMessage, body)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	shuffled := append([]Fragment(nil), frags...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	r := NewReassembler()
	now := time.Now()
	var got []byte
	var ok bool
	var err2 error
	for _, f := range shuffled {
		got, _, ok, err2 = r.Feed(f, now)
		if err2 != nil {
			t.Fatalf("Feed: %v", err2)
		}
	}
	if !ok || !bytes.Equal(got, body) {
		t.Fatalf("out-of-order reassembly failed")
	}
}

func TestDuplicateFragmentDropped(t *testing.T) {
	body := bytes.Repeat([]byte("ab"), 400)
	frags, _ := Split(wire.MessageTypeMessage, body)

	r := NewReassembler()
	now := time.Now()
	// Feed the first fragment twice.
	if _, _, _, err := r.Feed(frags[0], now); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if _, _, ok, err := r.Feed(frags[0], now); err != nil || ok {
		t.Fatalf("expected duplicate fragment to be silently dropped, ok=%v err=%v", ok, err)
	}
	for _, f := range frags[1:] {
		if _, _, _, err := r.Feed(f, now); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
}

func TestReassemblySweepExpiresIncompleteSets(t *testing.T) {
	body := bytes.Repeat([]byte("q"), 2000)
	frags, _ := Split(wire.MessageTypeMessage, body)

	r := NewReassembler()
	now := time.Now()
	r.Feed(frags[0], now)
	if r.Len() != 1 {
		t.Fatalf("expected 1 in-flight set, got %d", r.Len())
	}
	dropped := r.Sweep(now.Add(SetTimeout + time.Second))
	if dropped != 1 {
		t.Fatalf("expected sweep to drop 1 set, dropped %d", dropped)
	}
	if r.Len() != 0 {
		t.Fatalf("expected 0 in-flight sets after sweep, got %d", r.Len())
	}
}

func TestUnknownSetRejectsContinuation(t *testing.T) {
	r := NewReassembler()
	f := Fragment{Index: 1, Total: 3, OriginalType: wire.MessageTypeMessage, Data: []byte("x")}
	if _, _, _, err := r.Feed(f, time.Now()); err != ErrUnknownSet {
		t.Fatalf("expected ErrUnknownSet, got %v", err)
	}
}

func TestFragmentEncodeDecodeRoundTrip(t *testing.T) {
	f := Fragment{Index: 2, Total: 5, OriginalType: wire.MessageTypeMessage, Data: []byte("payload")}
	f.ID[0] = 0x42
	encoded := f.Encode()
	got, ok := DecodeFragment(encoded)
	if !ok {
		t.Fatalf("DecodeFragment failed")
	}
	if got.Index != f.Index || got.Total != f.Total || got.OriginalType != f.OriginalType {
		t.Fatalf("decoded header mismatch: %+v", got)
	}
	if !bytes.Equal(got.Data, f.Data) {
		t.Fatalf("decoded data mismatch")
	}
	if got.MessageType() != wire.MessageTypeFragmentContinue {
		t.Fatalf("expected CONTINUE type for a middle fragment, got %v", got.MessageType())
	}
}

func TestXORProtectorRecoversOneMissingShard(t *testing.T) {
	p, err := NewXORProtector(4)
	if err != nil {
		t.Fatalf("NewXORProtector: %v", err)
	}
	data := []Shard{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")}
	encoded, err := p.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	received := append([]Shard(nil), encoded...)
	received[1] = nil
	decoded, err := p.Decode(received)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range data {
		if !bytes.Equal(decoded[i], data[i]) {
			t.Fatalf("shard %d mismatch: got %q want %q", i, decoded[i], data[i])
		}
	}
}

func TestSplitReassembleRecoversOneLostFragment(t *testing.T) {
	body := bytes.Repeat([]byte("mesh"), 300) // > Threshold, small enough for XOR parity
	frags, err := Split(wire.MessageTypeMessage, body)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(frags) < 3 {
		t.Fatalf("expected at least 2 data fragments plus 1 parity fragment, got %d", len(frags))
	}

	// Drop a middle data fragment (never index total-1, which carries no
	// parity-recoverable guarantee) and feed everything else, including
	// the trailing parity fragment Split appended.
	r := NewReassembler()
	now := time.Now()
	var got []byte
	var ok bool
	for i, f := range frags {
		if i == 1 {
			continue
		}
		got, _, ok, err = r.Feed(f, now)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	if !ok {
		t.Fatalf("expected parity recovery to complete reassembly despite the missing fragment")
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("reassembled body mismatch after recovery")
	}
}

func TestReedSolomonProtectorRecoversMissingShards(t *testing.T) {
	p, err := NewReedSolomonProtector(4, 2)
	if err != nil {
		t.Fatalf("NewReedSolomonProtector: %v", err)
	}
	data := []Shard{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")}
	encoded, err := p.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	received := append([]Shard(nil), encoded...)
	received[0] = nil
	received[3] = nil
	decoded, err := p.Decode(received)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range data {
		if !bytes.Equal(decoded[i], data[i]) {
			t.Fatalf("shard %d mismatch: got %q want %q", i, decoded[i], data[i])
		}
	}
}
