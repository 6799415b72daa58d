package peermgr

import (
	"sync"
	"time"
)

// AnnounceThrottler gates broadcast announces to at most once per
// AnnounceThrottle, while always allowing an explicit trigger through
// (spec §4.4: "Broadcast announces at most every 30s plus on explicit
// triggers").
type AnnounceThrottler struct {
	mu   sync.Mutex
	last time.Time
}

// Allow reports whether a broadcast announce may be sent now. trigger
// bypasses the throttle interval entirely (new direct connection,
// nickname change, mesh start) but still records the time so the next
// periodic announce is measured from it.
func (t *AnnounceThrottler) Allow(now time.Time, trigger bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !trigger && now.Sub(t.last) < AnnounceThrottle {
		return false
	}
	t.last = now
	return true
}
