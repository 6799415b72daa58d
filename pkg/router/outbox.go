package router

import (
	"sync"
	"time"
)

// outboxEntry is one private message waiting for a transport to become
// available for its conversation key (spec §4.10).
type outboxEntry struct {
	msgID      string
	content    string
	nickname   string
	enqueuedAt time.Time
}

// Outbox is the router's per-conversation FIFO. Grounded on the
// teacher's per-peer outbound channel (device/peer.go, drained by
// RoutineSequentialSender) but drained by an explicit call rather than a
// free-running goroutine, the same shape pkg/store.Cache chose for the
// same reason: draining here is triggered by a handful of discrete
// events (session established, favorite became mutual, overlay came
// back), not a continuous stream.
type Outbox struct {
	mu      sync.Mutex
	byKey   map[string][]outboxEntry
	seenIDs map[string]map[string]struct{}
	aliasOf map[string]string
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{
		byKey:   make(map[string][]outboxEntry),
		seenIDs: make(map[string]map[string]struct{}),
		aliasOf: make(map[string]string),
	}
}

// canonicalLocked follows alias links until it reaches a key with no
// further redirect. aliasOf is append-only and redirects never cycle
// back on themselves, so this always terminates.
func (o *Outbox) canonicalLocked(key string) string {
	for {
		next, ok := o.aliasOf[key]
		if !ok {
			return key
		}
		key = next
	}
}

// Enqueue appends entry to key's queue, skipping it if that message ID
// is already queued under key (spec §8: sending with a repeated message
// ID delivers at most once).
func (o *Outbox) Enqueue(key string, entry outboxEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key = o.canonicalLocked(key)
	ids := o.seenIDs[key]
	if ids == nil {
		ids = make(map[string]struct{})
		o.seenIDs[key] = ids
	}
	if _, dup := ids[entry.msgID]; dup {
		return
	}
	ids[entry.msgID] = struct{}{}
	o.byKey[key] = append(o.byKey[key], entry)
}

// Unify records that old and canon name the same conversation, merging
// old's queued entries ahead of canon's (old's entries were queued
// first) and redirecting future lookups of old to canon (spec
// §4.10's conversation unification, driven by peermgr.RebindEvent).
func (o *Outbox) Unify(old, canon string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	old = o.canonicalLocked(old)
	canon = o.canonicalLocked(canon)
	if old == canon {
		return
	}

	merged := append(o.byKey[old], o.byKey[canon]...)
	delete(o.byKey, old)
	o.byKey[canon] = merged

	canonIDs := o.seenIDs[canon]
	if canonIDs == nil {
		canonIDs = make(map[string]struct{})
	}
	for id := range o.seenIDs[old] {
		canonIDs[id] = struct{}{}
	}
	o.seenIDs[canon] = canonIDs
	delete(o.seenIDs, old)

	o.aliasOf[old] = canon
}

// Drain delivers every entry queued for key, in FIFO order, via send,
// stopping and leaving the remainder queued the moment send returns an
// error.
func (o *Outbox) Drain(key string, send func(outboxEntry) error) (delivered int, err error) {
	for {
		o.mu.Lock()
		ck := o.canonicalLocked(key)
		entries := o.byKey[ck]
		if len(entries) == 0 {
			o.mu.Unlock()
			return delivered, nil
		}
		next := entries[0]
		o.mu.Unlock()

		if sendErr := send(next); sendErr != nil {
			return delivered, sendErr
		}

		o.mu.Lock()
		entries = o.byKey[ck]
		if len(entries) > 0 && entries[0].msgID == next.msgID {
			o.byKey[ck] = entries[1:]
			delete(o.seenIDs[ck], next.msgID)
		}
		o.mu.Unlock()
		delivered++
	}
}

// Len reports how many entries are queued for key.
func (o *Outbox) Len(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	ck := o.canonicalLocked(key)
	return len(o.byKey[ck])
}

// Sweep drops entries older than SendMaxAge across every key, returning
// the message IDs dropped so the caller can fail their delivery status
// (spec §7).
func (o *Outbox) Sweep(now time.Time) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var failed []string
	for key, entries := range o.byKey {
		kept := entries[:0]
		for _, e := range entries {
			if now.Sub(e.enqueuedAt) > SendMaxAge {
				failed = append(failed, e.msgID)
				delete(o.seenIDs[key], e.msgID)
				continue
			}
			kept = append(kept, e)
		}
		o.byKey[key] = kept
	}
	return failed
}
