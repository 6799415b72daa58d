package security

import "time"

// TimestampWindow is the maximum clock skew tolerated between a packet's
// sender timestamp and the local clock before the packet is treated as a
// replay (spec §4.6/§8: "Packets with timestamp 5 minutes beyond now are
// dropped").
const TimestampWindow = 5 * time.Minute

// WithinReplayWindow reports whether a packet timestamp is acceptable
// relative to now. Both stale (too far in the past) and implausibly
// future timestamps are rejected, since a sender's clock may be fast or
// slow relative to ours.
func WithinReplayWindow(timestampMS uint64, now time.Time) bool {
	ts := time.UnixMilli(int64(timestampMS))
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff <= TimestampWindow
}
