package mesh

import (
	"context"
	"log/slog"
	"time"
)

// heartbeatPayload is the fixed literal carried by liveness probes.
const heartbeatPayload = "ping"

// heartbeatLoop sends a HEARTBEAT to every known node at a fixed interval.
// Heartbeats are best-effort and unacknowledged; they exist only to keep an
// active peer's LastSeen fresh between discovery cycles.
func (m *Mesh) heartbeatLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sendHeartbeats()
		}
	}
}

// sendHeartbeats unicasts one HEARTBEAT per known node. Each send is
// independent; a failure toward one peer does not block the rest.
func (m *Mesh) sendHeartbeats() {
	nodes := m.nodes.All()
	if len(nodes) == 0 {
		return
	}

	for _, node := range nodes {
		msg := NewMessage(m.localID, node.ID, MsgTypeHeartbeat, []byte(heartbeatPayload))
		m.sendControl(msg, node.Address, node.Port)
	}

	slog.Debug("heartbeats sent", "nodes", len(nodes))
}

// handleHeartbeat refreshes the sender's LastSeen. A heartbeat from an
// unknown (possibly already-evicted) node is a silent no-op: nodes are
// only materialized through discovery, never from a stray probe.
func (m *Mesh) handleHeartbeat(msg *Message) {
	if m.nodes.Touch(msg.SourceID) {
		slog.Debug("heartbeat", "node_id", msg.SourceID)
	}
}
