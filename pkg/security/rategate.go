package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// Rate gate parameters (spec §4.6): 60 packets / 10s per sender.
const (
	RateLimit        = 60
	RateWindow       = 10 * time.Second
	rateGCInterval   = time.Second
	rateEntryMaxIdle = RateWindow * 3
)

// RateGate is a per-sender token bucket, structured like the teacher's
// ratelimiter package (a sharded map with a background GC sweep) but
// delegating the bucket math itself to golang.org/x/time/rate.
type RateGate struct {
	mu      sync.Mutex
	buckets map[wire.PeerID]*rateEntry
	stop    chan struct{}
	wg      sync.WaitGroup

	// dropped is a debug counter for packets dropped by the gate
	// (spec §4.6: "excess is dropped with a debug counter").
	droppedMu sync.Mutex
	dropped   uint64
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateGate() *RateGate {
	g := &RateGate{
		buckets: make(map[wire.PeerID]*rateEntry),
		stop:    make(chan struct{}),
	}
	g.wg.Add(1)
	go g.gcLoop()
	return g
}

// Allow reports whether a packet from sender should be processed, and
// consumes one token from that sender's bucket if so.
func (g *RateGate) Allow(sender wire.PeerID, now time.Time) bool {
	g.mu.Lock()
	entry, ok := g.buckets[sender]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(float64(RateLimit)/RateWindow.Seconds()), RateLimit)}
		g.buckets[sender] = entry
	}
	entry.lastSeen = now
	g.mu.Unlock()

	allowed := entry.limiter.AllowN(now, 1)
	if !allowed {
		g.droppedMu.Lock()
		g.dropped++
		g.droppedMu.Unlock()
	}
	return allowed
}

// Dropped returns the running count of packets rejected by the gate.
func (g *RateGate) Dropped() uint64 {
	g.droppedMu.Lock()
	defer g.droppedMu.Unlock()
	return g.dropped
}

func (g *RateGate) gcLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(rateGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case now := <-ticker.C:
			g.mu.Lock()
			for id, entry := range g.buckets {
				if now.Sub(entry.lastSeen) > rateEntryMaxIdle {
					delete(g.buckets, id)
				}
			}
			g.mu.Unlock()
		}
	}
}

func (g *RateGate) Close() {
	close(g.stop)
	g.wg.Wait()
}
