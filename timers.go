package bitchat

import (
	"time"

	"github.com/permissionlesstech/bitchat-core/pkg/handler"
)

// startTimers launches one goroutine per periodic housekeeping task (spec
// §5: "Timers are monotonic; wall-clock jumps do not invalidate
// sessions"), each ticking independently so a slow task never delays the
// others. Grounded on the teacher's timers.go: one goroutine per timer,
// driven by time.Ticker, torn down via a shared stop channel.
func (n *Node) startTimers() {
	n.runEvery(announceInterval, n.onAnnounceTick)
	n.runEvery(graphSweepInterval, n.onGraphSweepTick)
	n.runEvery(fragmentSweepInterval, n.onFragmentSweepTick)
	n.runEvery(rekeyCheckInterval, n.onRekeyCheckTick)
	n.runEvery(storeForwardSweepInterval, n.onStoreForwardSweepTick)
	n.runEvery(outboxSweepInterval, n.onOutboxSweepTick)
}

func (n *Node) runEvery(interval time.Duration, fn func(now time.Time)) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-n.stopCh:
				return
			case now := <-ticker.C:
				fn(now)
			}
		}
	}()
}

func (n *Node) onAnnounceTick(now time.Time) {
	n.sendBroadcastAnnounce(now)
}

func (n *Node) onGraphSweepTick(now time.Time) {
	n.graph.Prune(now)
	for _, peer := range n.peers.PruneStale(now) {
		n.sessions.Remove(peer)
	}
}

func (n *Node) onFragmentSweepTick(now time.Time) {
	n.frag.Sweep(now)
}

// onRekeyCheckTick expires sessions past their handshake timeout and
// re-initiates toward any peer whose session needs a rekey, applying the
// same tie-break StartHandshake already enforces (spec §4.3/§5).
func (n *Node) onRekeyCheckTick(now time.Time) {
	for _, peer := range n.sessions.Sweep(now) {
		_ = n.handler.StartHandshake(peer, now)
	}
}

func (n *Node) onStoreForwardSweepTick(now time.Time) {
	n.cache.Sweep(now)
}

func (n *Node) onOutboxSweepTick(now time.Time) {
	n.router.SweepOutbox(now)
}

// sendBroadcastAnnounce emits this node's identity announcement with its
// current direct-neighbor gossip list (spec §3: "broadcast announces at
// most every 30s plus on explicit triggers").
func (n *Node) sendBroadcastAnnounce(now time.Time) {
	n.mu.RLock()
	nickname := n.nickname
	n.mu.RUnlock()

	neighbors := n.peers.DirectPeers()
	pkt, err := handler.BuildAnnounce(n.id, nickname, neighbors)
	if err != nil {
		return
	}
	encoded, err := handler.Finalize(n.id, pkt, now)
	if err != nil {
		return
	}
	n.mesh.Broadcast(encoded)
}
