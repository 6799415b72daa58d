package peermgr

import (
	"sync"
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/identity"
	"github.com/permissionlesstech/bitchat-core/pkg/wire"
)

// RebindEvent is delivered when a known fingerprint reappears under a new
// peer ID, so the router can merge conversations keyed by the old ID into
// the new one (spec §4.4: "merge any chats keyed by old ID into new").
type RebindEvent struct {
	Fingerprint string
	OldPeerID   wire.PeerID
	NewPeerID   wire.PeerID
}

// Manager is the live peer table: peer_id -> Record, plus a secondary
// fingerprint -> peer_id index for rebind detection across peer-ID
// rotation (spec §4.4).
type Manager struct {
	mu          sync.RWMutex
	byPeerID    map[wire.PeerID]*Record
	byFingerprint map[string]wire.PeerID

	onRebind func(RebindEvent)
}

func NewManager() *Manager {
	return &Manager{
		byPeerID:      make(map[wire.PeerID]*Record),
		byFingerprint: make(map[string]wire.PeerID),
	}
}

// OnRebind registers the callback invoked whenever observe_announce
// rebinds a fingerprint to a new peer ID.
func (m *Manager) OnRebind(fn func(RebindEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRebind = fn
}

// ObserveAnnounce adds or updates a peer record from a freshly validated
// ANNOUNCE or MESSAGE. If staticPub's fingerprint is already bound to a
// different peer ID, the old binding is replaced and onRebind fires
// (spec §4.4, §3: "rebinding means replacing the peer-ID edge of the
// record, never mutating the fingerprint").
func (m *Manager) ObserveAnnounce(peer wire.PeerID, nickname string, staticPub identity.NoisePublicKey, signingPub []byte, now time.Time) {
	fp := ""
	if !staticPub.IsZero() {
		fp = identity.Fingerprint(staticPub)
	}

	m.mu.Lock()
	var rebind *RebindEvent
	if fp != "" {
		if oldPeer, ok := m.byFingerprint[fp]; ok && oldPeer != peer {
			delete(m.byPeerID, oldPeer)
			rebind = &RebindEvent{Fingerprint: fp, OldPeerID: oldPeer, NewPeerID: peer}
		}
		m.byFingerprint[fp] = peer
	}

	rec, existed := m.byPeerID[peer]
	if !existed {
		rec = &Record{PeerID: peer, FirstSeen: now}
	}
	rec.Nickname = nickname
	rec.StaticPub = staticPub
	rec.SigningPub = signingPub
	rec.Fingerprint = fp
	rec.LastSeen = now
	m.byPeerID[peer] = rec
	cb := m.onRebind
	m.mu.Unlock()

	if rebind != nil && cb != nil {
		cb(*rebind)
	}
}

// UpdateRSSI records the latest observed signal strength for peer.
func (m *Manager) UpdateRSSI(peer wire.PeerID, rssi int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byPeerID[peer]; ok {
		rec.RSSI = rssi
	}
}

// UpdateLastSeen refreshes the staleness clock for peer without touching
// identity fields (used for any valid reception, not just ANNOUNCE).
func (m *Manager) UpdateLastSeen(peer wire.PeerID, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byPeerID[peer]; ok {
		rec.LastSeen = now
	}
}

// SetDirect marks whether peer is reachable over a direct link (as
// opposed to only via multi-hop relay).
func (m *Manager) SetDirect(peer wire.PeerID, direct bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byPeerID[peer]; ok {
		rec.Direct = direct
	}
}

// MarkAnnouncedTo records that a peer-directed announce has already been
// sent to peer this session, preventing duplicates (spec §4.4).
func (m *Manager) MarkAnnouncedTo(peer wire.PeerID, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byPeerID[peer]; ok {
		rec.HasAnnounced = true
		rec.AnnouncedAt = now
	}
}

// HasAnnouncedTo reports whether a peer-directed announce has already
// been sent to peer this session.
func (m *Manager) HasAnnouncedTo(peer wire.PeerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byPeerID[peer]
	return ok && rec.HasAnnounced
}

// Get returns a copy of the record for peer, if known.
func (m *Manager) Get(peer wire.PeerID) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byPeerID[peer]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// PeerIDForFingerprint resolves a stable fingerprint to its currently
// bound peer ID, if any.
func (m *Manager) PeerIDForFingerprint(fp string) (wire.PeerID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byFingerprint[fp]
	return id, ok
}

// DirectPeers returns the peer IDs currently marked reachable over a
// direct link (SetDirect), for feeding outgoing GOSSIP TLVs and the relay
// planner's directLinks (spec §3, §4.8).
func (m *Manager) DirectPeers() []wire.PeerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wire.PeerID, 0, len(m.byPeerID))
	for id, rec := range m.byPeerID {
		if rec.Direct {
			out = append(out, id)
		}
	}
	return out
}

// GetVerifiedPeers returns every record carrying a static Noise key (and
// thus a usable fingerprint).
func (m *Manager) GetVerifiedPeers() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.byPeerID))
	for _, rec := range m.byPeerID {
		if rec.Verified() {
			out = append(out, rec.clone())
		}
	}
	return out
}

// GetActivePeers returns every record seen within StaleTimeout of now.
func (m *Manager) GetActivePeers(now time.Time) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.byPeerID))
	for _, rec := range m.byPeerID {
		if rec.Active(now) {
			out = append(out, rec.clone())
		}
	}
	return out
}

// PruneStale removes every record not seen within StaleTimeout of now,
// returning the peer IDs removed so callers can tear down sessions and
// release other per-peer resources.
func (m *Manager) PruneStale(now time.Time) []wire.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []wire.PeerID
	for id, rec := range m.byPeerID {
		if rec.Active(now) {
			continue
		}
		delete(m.byPeerID, id)
		if rec.Fingerprint != "" && m.byFingerprint[rec.Fingerprint] == id {
			delete(m.byFingerprint, rec.Fingerprint)
		}
		removed = append(removed, id)
	}
	return removed
}

// Len reports the number of peer records currently tracked.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPeerID)
}

// Clear drops every record and fingerprint binding at once, as part of a
// panic reset (spec §7).
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPeerID = make(map[wire.PeerID]*Record)
	m.byFingerprint = make(map[string]wire.PeerID)
}
