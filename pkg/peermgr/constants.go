package peermgr

import "time"

// Peer lifecycle parameters (spec §3/§4.4).
const (
	// StaleTimeout is how long a peer record is kept without any fresh
	// reception before it is pruned.
	StaleTimeout = 180 * time.Second

	// AnnounceThrottle is the minimum interval between broadcast
	// announces, absent an explicit trigger (new direct connection,
	// nickname change, mesh start).
	AnnounceThrottle = 30 * time.Second
)
