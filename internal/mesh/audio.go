package mesh

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrEmptyPayload rejects zero-length audio sends at the API boundary.
var ErrEmptyPayload = errors.New("mesh: empty audio payload")

// audioLoop drives the data plane: receive on the audio socket, deliver
// local audio to the sink, forward the rest. A panicking sink callback is
// caught and logged; the loop never dies from payload handling.
func (m *Mesh) audioLoop(ctx context.Context) {
	defer m.wg.Done()

	sock := m.audioSocket()

	for {
		data, sender, err := sock.Receive()
		if err != nil {
			if !m.running.Load() || ctx.Err() != nil {
				return
			}
			slog.Warn("audio receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}

		m.handleAudioDatagram(data, sender)
	}
}

// handleAudioDatagram processes one data-plane datagram.
func (m *Mesh) handleAudioDatagram(data []byte, sender string) {
	msg, err := Deserialize(data)
	if err != nil {
		slog.Warn("dropping undecodable audio datagram",
			"sender", sender,
			"size", len(data),
			"error", err,
		)
		m.countDropped("decode_error")
		return
	}

	if msg.SourceID == m.localID {
		return
	}

	if msg.Type != MsgTypeAudioData {
		m.countDropped("wrong_plane")
		return
	}

	m.countReceived(msg.Type, planeAudio, len(msg.Payload))

	if msg.DestinationID == m.localID || msg.IsBroadcast() {
		m.deliverAudio(msg)
		return
	}

	m.forwardAudio(msg)
}

// deliverAudio hands the raw payload to the audio-sink collaborator.
func (m *Mesh) deliverAudio(msg *Message) {
	if len(msg.Payload) == 0 || len(msg.Payload) > MaxAudioPayload {
		m.countDropped("payload_bounds")
		slog.Warn("audio payload outside bounds",
			"source", msg.SourceID,
			"size", len(msg.Payload),
		)
		return
	}

	m.mu.RLock()
	handler := m.onAudio
	m.mu.RUnlock()

	if handler == nil {
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("audio handler panicked", "panic", r)
			}
		}()
		handler(msg.Payload, msg.SourceID)
	}()
}

// forwardAudio applies the TTL-bounded forwarding rule on the data plane,
// using the next hop's audio port.
func (m *Mesh) forwardAudio(msg *Message) {
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
	m.sendAudio(&fwd, next.Address, next.AudioPort())
	m.countForwarded(msg.Type)
}

// SendAudioData sends an encoded audio frame. With a destination ID the
// frame is routed toward that node; with an empty destination it fans out
// as one unicast per known node, since there is no true broadcast datagram
// on the data plane. Fan-out sends are independent fire-and-forget tasks;
// partial failure toward one peer does not block the others.
func (m *Mesh) SendAudioData(payload []byte, destinationID string) error {
	if !m.running.Load() {
		return ErrNotRunning
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > MaxAudioPayload {
		return ErrPayloadTooLarge
	}

	if destinationID != "" {
		next, ok := m.nodes.NextHop(destinationID)
		if !ok {
			return ErrNoRouteToNode
		}
		msg := NewMessage(m.localID, destinationID, MsgTypeAudioData, payload)
		m.sendAudio(msg, next.Address, next.AudioPort())
		return nil
	}

	for _, node := range m.nodes.All() {
		msg := NewMessage(m.localID, node.ID, MsgTypeAudioData, payload)
		addr, port := node.Address, node.AudioPort()
		go m.sendAudio(msg, addr, port)
	}
	return nil
}
