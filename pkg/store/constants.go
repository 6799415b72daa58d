package store

import "time"

// Store-and-forward parameters (spec §4.9).
const (
	// MaxPerRecipient bounds the FIFO depth kept for any one recipient.
	MaxPerRecipient = 200

	// TTL is how long a stored envelope survives before expiry.
	TTL = 7 * 24 * time.Hour

	// DrainRate caps how fast a recipient's queue drains once their
	// session is Established, in messages per second.
	DrainRate = 10

	// SweepInterval is how often expired envelopes are purged.
	SweepInterval = 60 * time.Second
)
