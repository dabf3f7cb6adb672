// Package mesh implements an infrastructure-free UDP mesh for real-time
// voice among a small group of peers. Every node is both a client and a
// relay: discovery, liveness, one-hop routing, duplicate suppression and
// TTL-bounded forwarding all run without a central coordinator.
package mesh

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of mesh protocol message.
type MessageType int

const (
	// MsgTypeDiscovery announces a node's identity.
	MsgTypeDiscovery MessageType = iota + 1

	// MsgTypeRouteUpdate carries routing information. Accepted on the wire
	// but currently a no-op; see Mesh.recomputeRoutes.
	MsgTypeRouteUpdate

	// MsgTypeAudioData carries encoded audio frames on the data plane.
	MsgTypeAudioData

	// MsgTypeControl carries application text messages.
	MsgTypeControl

	// MsgTypeHeartbeat is a periodic liveness probe.
	MsgTypeHeartbeat
)

// String returns the uppercase wire token for the message type.
func (t MessageType) String() string {
	switch t {
	case MsgTypeDiscovery:
		return "DISCOVERY"
	case MsgTypeRouteUpdate:
		return "ROUTE_UPDATE"
	case MsgTypeAudioData:
		return "AUDIO_DATA"
	case MsgTypeControl:
		return "CONTROL"
	case MsgTypeHeartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// ParseMessageType parses a wire token into a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	switch s {
	case "DISCOVERY":
		return MsgTypeDiscovery, nil
	case "ROUTE_UPDATE":
		return MsgTypeRouteUpdate, nil
	case "AUDIO_DATA":
		return MsgTypeAudioData, nil
	case "CONTROL":
		return MsgTypeControl, nil
	case "HEARTBEAT":
		return MsgTypeHeartbeat, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMessageType, s)
	}
}

// BroadcastID is the destination sentinel for messages addressed to every
// node rather than a specific one.
const BroadcastID = "broadcast"

// DefaultTTL is the hop budget assigned to newly created messages.
const DefaultTTL = 10

// headerFields is the number of pipe-delimited fields preceding the payload.
const headerFields = 6

// Common codec errors.
var (
	ErrTruncatedMessage   = errors.New("mesh: truncated message header")
	ErrUnknownMessageType = errors.New("mesh: unknown message type")
	ErrMalformedHeader    = errors.New("mesh: malformed message header")
)

// Message is a single mesh protocol datagram. Messages are ephemeral:
// built per send, discarded after dispatch. Only the ID may outlive the
// message, inside the dedup cache.
type Message struct {
	// ID uniquely identifies the message across the mesh.
	ID string

	// SourceID is the originating node.
	SourceID string

	// DestinationID is the target node, or BroadcastID.
	DestinationID string

	// Type is the message type.
	Type MessageType

	// TTL is the remaining hop budget.
	TTL int

	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64

	// Payload is the raw application payload. May contain any bytes,
	// including the header separator.
	Payload []byte
}

// NewMessage builds a message from the local node with a fresh ID, the
// default TTL and the current timestamp.
func NewMessage(sourceID, destinationID string, msgType MessageType, payload []byte) *Message {
	return &Message{
		ID:            uuid.NewString(),
		SourceID:      sourceID,
		DestinationID: destinationID,
		Type:          msgType,
		TTL:           DefaultTTL,
		Timestamp:     time.Now().UnixMilli(),
		Payload:       payload,
	}
}

// IsBroadcast reports whether the message is addressed to every node.
func (m *Message) IsBroadcast() bool {
	return m.DestinationID == BroadcastID
}

// Serialize encodes the message into its wire form: six pipe-delimited
// header fields followed by one literal pipe, then the payload verbatim.
//
//	id|source|destination|TYPE|ttl|timestampMs|payload...
func Serialize(m *Message) []byte {
	var b strings.Builder
	b.Grow(len(m.ID) + len(m.SourceID) + len(m.DestinationID) + 32)

	b.WriteString(m.ID)
	b.WriteByte('|')
	b.WriteString(m.SourceID)
	b.WriteByte('|')
	b.WriteString(m.DestinationID)
	b.WriteByte('|')
	b.WriteString(m.Type.String())
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(m.TTL))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(m.Timestamp, 10))
	b.WriteByte('|')

	out := make([]byte, 0, b.Len()+len(m.Payload))
	out = append(out, b.String()...)
	out = append(out, m.Payload...)
	return out
}

// Deserialize decodes a wire buffer into a Message.
//
// The header is scanned for exactly six pipe separators; everything after
// the sixth is payload, so payload bytes containing pipes survive intact.
func Deserialize(data []byte) (*Message, error) {
	fields := make([]string, 0, headerFields)
	start := 0

	for i := 0; i < len(data) && len(fields) < headerFields; i++ {
		if data[i] == '|' {
			fields = append(fields, string(data[start:i]))
			start = i + 1
		}
	}

	if len(fields) < headerFields {
		return nil, ErrTruncatedMessage
	}

	msgType, err := ParseMessageType(fields[3])
	if err != nil {
		return nil, err
	}

	ttl, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, fmt.Errorf("%w: bad ttl %q", ErrMalformedHeader, fields[4])
	}

	ts, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformedHeader, fields[5])
	}

	payload := make([]byte, len(data)-start)
	copy(payload, data[start:])

	return &Message{
		ID:            fields[0],
		SourceID:      fields[1],
		DestinationID: fields[2],
		Type:          msgType,
		TTL:           ttl,
		Timestamp:     ts,
		Payload:       payload,
	}, nil
}
