// Package store implements the store-and-forward cache: a per-recipient
// FIFO of envelopes addressed to currently-offline mutual favorites,
// drained at a bounded rate once a session is established, and expired on
// a periodic sweep (spec §4.9). Grounded on the teacher's per-peer
// outbound queue in device/peer.go and the sharded-map-with-GC shape of
// ratelimiter/ratelimiter.go, here sharded by recipient fingerprint
// instead of sender IP, matching spec §5's "one lock per recipient".
package store

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Envelope is one stored message awaiting delivery.
type Envelope struct {
	Packet     []byte
	InsertedAt time.Time
	ExpireAt   time.Time
}

type recipientQueue struct {
	mu      sync.Mutex
	entries []Envelope
	drainer *rate.Limiter
}

// Cache is the store-and-forward cache, one FIFO queue per recipient
// fingerprint.
type Cache struct {
	mu    sync.RWMutex
	queues map[string]*recipientQueue
}

func NewCache() *Cache {
	return &Cache{queues: make(map[string]*recipientQueue)}
}

func (c *Cache) queueFor(fingerprint string) *recipientQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[fingerprint]
	if !ok {
		q = &recipientQueue{drainer: rate.NewLimiter(rate.Limit(DrainRate), DrainRate)}
		c.queues[fingerprint] = q
	}
	return q
}

// Insert appends packet to fingerprint's queue, evicting the oldest entry
// if the queue is already at MaxPerRecipient. Callers are responsible for
// checking the mutual-favorite-and-offline insertion policy (spec §4.9)
// before calling Insert; the cache itself only enforces capacity and TTL.
func (c *Cache) Insert(fingerprint string, packet []byte, now time.Time) {
	q := c.queueFor(fingerprint)
	q.mu.Lock()
	defer q.mu.Unlock()

	env := Envelope{Packet: packet, InsertedAt: now, ExpireAt: now.Add(TTL)}
	q.entries = append(q.entries, env)
	if len(q.entries) > MaxPerRecipient {
		q.entries = q.entries[len(q.entries)-MaxPerRecipient:]
	}
}

// Drain delivers up to the recipient's current rate-limiter allowance,
// calling send for each envelope in FIFO order; envelopes for which send
// returns an error are put back at the front of the queue and draining
// stops, so a transient send failure doesn't lose messages.
func (c *Cache) Drain(fingerprint string, now time.Time, send func(Envelope) error) (delivered int, err error) {
	q := c.queueFor(fingerprint)
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return delivered, nil
		}
		if !q.drainer.AllowN(now, 1) {
			q.mu.Unlock()
			return delivered, nil
		}
		next := q.entries[0]
		q.mu.Unlock()

		if sendErr := send(next); sendErr != nil {
			return delivered, sendErr
		}

		q.mu.Lock()
		if len(q.entries) > 0 && q.entries[0].InsertedAt.Equal(next.InsertedAt) {
			q.entries = q.entries[1:]
		}
		q.mu.Unlock()
		delivered++
	}
}

// Sweep removes expired envelopes across every recipient queue, returning
// the total removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.RLock()
	queues := make([]*recipientQueue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.mu.RUnlock()

	removed := 0
	for _, q := range queues {
		q.mu.Lock()
		kept := q.entries[:0]
		for _, e := range q.entries {
			if now.After(e.ExpireAt) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		q.entries = kept
		q.mu.Unlock()
	}
	return removed
}

// Len reports how many envelopes are queued for fingerprint.
func (c *Cache) Len(fingerprint string) int {
	q := c.queueFor(fingerprint)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
