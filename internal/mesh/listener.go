package mesh

import (
	"context"
	"log/slog"
	"time"
)

// receiveBackoff is the pause after a transient receive failure before the
// listener loop resumes.
const receiveBackoff = 100 * time.Millisecond

// listenLoop drives the control plane: receive, decode, dedup, dispatch.
// Per-packet errors never escape the loop; the only exit conditions are
// context cancellation and the socket closing at shutdown.
func (m *Mesh) listenLoop(ctx context.Context) {
	defer m.wg.Done()

	sock := m.controlSocket()

	for {
		data, sender, err := sock.Receive()
		if err != nil {
			if !m.running.Load() || ctx.Err() != nil {
				return
			}
			slog.Warn("control receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}

		m.handleControlDatagram(data, sender)
	}
}

// handleControlDatagram processes one control-plane datagram.
func (m *Mesh) handleControlDatagram(data []byte, sender string) {
	msg, err := Deserialize(data)
	if err != nil {
		slog.Warn("dropping undecodable control datagram",
			"sender", sender,
			"size", len(data),
			"error", err,
		)
		m.countDropped("decode_error")
		return
	}

	// Self-echo: our own broadcasts come back on the same subnet.
	if msg.SourceID == m.localID {
		return
	}

	// At-most-once processing per message ID.
	if !m.seen.Add(msg.ID) {
		if m.metrics != nil {
			m.metrics.DuplicatesSuppressed.Inc()
		}
		m.countDropped("duplicate")
		return
	}

	m.countReceived(msg.Type, planeControl, len(msg.Payload))

	switch msg.Type {
	case MsgTypeDiscovery:
		m.handleDiscovery(msg, sender)
	case MsgTypeHeartbeat:
		m.handleHeartbeat(msg)
	case MsgTypeControl:
		m.handleControl(msg)
	case MsgTypeRouteUpdate:
		m.handleRouteUpdate(msg)
	default:
		// AUDIO_DATA arrives on the data plane; one showing up here is
		// simply ignored.
	}
}

// handleControl delivers a control message addressed to this node, or
// forwards it toward its destination.
func (m *Mesh) handleControl(msg *Message) {
	if msg.DestinationID != m.localID {
		m.forwardControl(msg)
		return
	}

	m.mu.RLock()
	handler := m.onControl
	m.mu.RUnlock()

	if handler == nil {
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("control handler panicked", "panic", r)
			}
		}()
		handler(string(msg.Payload), msg.SourceID)
	}()
}

// handleRouteUpdate accepts ROUTE_UPDATE messages as an extension point.
// No distance-vector processing exists; the message is acknowledged in the
// log and dropped. See Mesh.recomputeRoutes.
func (m *Mesh) handleRouteUpdate(msg *Message) {
	slog.Debug("route update ignored, not implemented", "source", msg.SourceID)
}

// forwardControl applies the TTL-bounded forwarding rule on the control
// plane: decrement, resolve next hop, re-send. No route means a silent
// drop; this is a best-effort mesh.
func (m *Mesh) forwardControl(msg *Message) {
	if msg.TTL <= 0 {
		m.countDropped("ttl_exhausted")
		return
	}

	next, ok := m.nodes.NextHop(msg.DestinationID)
	if !ok {
		m.countDropped("no_route")
		return
	}

	fwd := *msg
	fwd.TTL--
	m.sendControl(&fwd, next.Address, next.Port)
	m.countForwarded(msg.Type)

	slog.Debug("forwarded control message",
		"dest", msg.DestinationID,
		"via", next.ID,
		"ttl", fwd.TTL,
	)
}

// SendControlMessage sends a text control message toward a node. Returns
// ErrNoRouteToNode when the destination is unknown.
func (m *Mesh) SendControlMessage(text, destinationID string) error {
	if !m.running.Load() {
		return ErrNotRunning
	}

	next, ok := m.nodes.NextHop(destinationID)
	if !ok {
		return ErrNoRouteToNode
	}

	msg := NewMessage(m.localID, destinationID, MsgTypeControl, []byte(text))
	m.sendControl(msg, next.Address, next.Port)
	return nil
}
