package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lanvoice/meshtalk/internal/metrics"
)

// Common session errors.
var (
	ErrAlreadyRunning    = errors.New("mesh: session already running")
	ErrNotRunning        = errors.New("mesh: session not running")
	ErrConnectInFlight   = errors.New("mesh: a connection attempt is already in progress")
	ErrConnectCooldown   = errors.New("mesh: connection attempt cooldown not elapsed")
	ErrConnectTimeout    = errors.New("mesh: connection attempt timed out")
	ErrOwnAddress        = errors.New("mesh: address belongs to the local node")
	ErrNoRouteToNode     = errors.New("mesh: no route to node")
	ErrPayloadTooLarge   = errors.New("mesh: payload exceeds datagram capacity")
)

// MaxAudioPayload is the application-boundary cap on audio payload size.
// Oversized payloads are rejected before reaching the codec or the wire.
const MaxAudioPayload = 16 * 1024

// AudioHandler receives decodable audio payloads addressed to this node.
type AudioHandler func(payload []byte, sourceID string)

// ControlHandler receives control message text addressed to this node.
type ControlHandler func(text string, sourceID string)

// NodesChangedHandler receives the connected-nodes projection whenever the
// node table changes.
type NodesChangedHandler func(nodes []*Node)

// Plane labels for metrics.
const (
	planeControl = "control"
	planeAudio   = "audio"
)

// Mesh is one mesh session: two sockets, the shared tables, and the five
// service loops that keep the topology alive. Create with New, then Start.
type Mesh struct {
	localID     string
	displayName string
	cfg         Config

	transport Transport
	metrics   *metrics.Metrics

	control Socket
	audio   Socket

	nodes     *NodeTable
	seen      *SeenCache
	responses *ResponseLimiter

	onAudio        AudioHandler
	onControl      ControlHandler
	onNodesChanged NodesChangedHandler

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	connecting  atomic.Bool
	lastAttempt map[string]time.Time
	mu          sync.RWMutex // guards handlers, sockets, lastAttempt
}

// New creates a mesh session. localID may be empty, in which case a random
// node ID is generated for the process lifetime. The metrics argument may
// be nil when instrumentation is not wanted (tests).
func New(localID string, cfg Config, transport Transport, m *metrics.Metrics) (*Mesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if localID == "" {
		localID = "node-" + uuid.NewString()
	}
	if transport == nil {
		transport = NewUDPTransport()
	}

	return &Mesh{
		localID:     localID,
		displayName: cfg.DisplayName,
		cfg:         cfg,
		transport:   transport,
		metrics:     m,
		nodes:       NewNodeTable(),
		seen:        NewSeenCache(cfg.DedupRetention),
		responses:   NewResponseLimiter(cfg.ResponseInterval, cfg.ResponseRetention),
		lastAttempt: make(map[string]time.Time),
	}, nil
}

// LocalID returns the local node ID.
func (m *Mesh) LocalID() string {
	return m.localID
}

// Nodes returns the current connected-nodes projection.
func (m *Mesh) Nodes() []*Node {
	return m.nodes.All()
}

// Routes returns the current route table snapshot.
func (m *Mesh) Routes() []*Route {
	return m.nodes.Routes()
}

// SetAudioHandler registers the audio-sink collaborator.
func (m *Mesh) SetAudioHandler(h AudioHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudio = h
}

// SetControlHandler registers the control-message collaborator.
func (m *Mesh) SetControlHandler(h ControlHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onControl = h
}

// SetNodesChangedHandler registers the projection observer.
func (m *Mesh) SetNodesChangedHandler(h NodesChangedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNodesChanged = h
}

// Start binds both sockets and launches the service loops. A bind failure
// tears down anything already opened before returning.
func (m *Mesh) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	control, err := m.transport.OpenSocket(m.cfg.ControlPort, ControlRecvBufferSize)
	if err != nil {
		m.running.Store(false)
		return fmt.Errorf("mesh: failed to start: %w", err)
	}

	audio, err := m.transport.OpenSocket(m.cfg.AudioPort(), AudioRecvBufferSize)
	if err != nil {
		control.Close()
		m.running.Store(false)
		return fmt.Errorf("mesh: failed to start: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.control = control
	m.audio = audio
	m.cancel = cancel
	m.mu.Unlock()

	slog.Info("mesh started",
		"node_id", m.localID,
		"name", m.displayName,
		"control_port", m.cfg.ControlPort,
		"audio_port", m.cfg.AudioPort(),
	)

	m.wg.Add(5)
	go m.discoveryLoop(ctx)
	go m.heartbeatLoop(ctx)
	go m.maintenanceLoop(ctx)
	go m.listenLoop(ctx)
	go m.audioLoop(ctx)

	return nil
}

// Stop tears the session down: the running flag drops, both sockets close
// so blocked receives fail immediately, and all loops are waited out.
func (m *Mesh) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	slog.Info("mesh stopping", "node_id", m.localID)

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	if m.control != nil {
		m.control.Close()
	}
	if m.audio != nil {
		m.audio.Close()
	}
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// Running reports whether the session is active.
func (m *Mesh) Running() bool {
	return m.running.Load()
}

// controlSocket returns the control-plane socket.
func (m *Mesh) controlSocket() Socket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.control
}

// audioSocket returns the data-plane socket.
func (m *Mesh) audioSocket() Socket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.audio
}

// sendControl serializes and transmits a message on the control plane.
// Best effort: transport errors are logged at debug and swallowed.
func (m *Mesh) sendControl(msg *Message, address string, port int) {
	sock := m.controlSocket()
	if sock == nil {
		return
	}
	data := Serialize(msg)
	if err := sock.Send(data, address, port); err != nil {
		slog.Debug("control send failed",
			"type", msg.Type.String(),
			"address", address,
			"error", err,
		)
		return
	}
	m.countSent(msg.Type, planeControl, len(msg.Payload))
}

// sendAudio serializes and transmits a message on the data plane.
func (m *Mesh) sendAudio(msg *Message, address string, port int) {
	sock := m.audioSocket()
	if sock == nil {
		return
	}
	data := Serialize(msg)
	if err := sock.Send(data, address, port); err != nil {
		slog.Debug("audio send failed",
			"address", address,
			"error", err,
		)
		return
	}
	m.countSent(msg.Type, planeAudio, len(msg.Payload))
}

// publishNodes pushes the projection to the observer and refreshes gauges.
func (m *Mesh) publishNodes() {
	nodes := m.nodes.All()

	if m.metrics != nil {
		m.metrics.NodesKnown.Set(float64(len(nodes)))
		m.metrics.RoutesKnown.Set(float64(len(m.nodes.Routes())))
	}

	m.mu.RLock()
	handler := m.onNodesChanged
	m.mu.RUnlock()

	if handler != nil {
		handler(nodes)
	}
}

// localAddresses returns the set of this host's interface addresses, used
// to suppress self-connections and self-probes.
func (m *Mesh) localAddresses() map[string]bool {
	out := make(map[string]bool)
	ifaces, err := m.transport.ActiveInterfaces()
	if err != nil {
		return out
	}
	for _, ia := range ifaces {
		out[ia.Address] = true
	}
	return out
}

func (m *Mesh) countReceived(t MessageType, plane string, payloadLen int) {
	if m.metrics == nil {
		return
	}
	m.metrics.MessagesReceived.WithLabelValues(t.String(), plane).Inc()
	m.metrics.BytesReceived.WithLabelValues(plane).Add(float64(payloadLen))
}

func (m *Mesh) countSent(t MessageType, plane string, payloadLen int) {
	if m.metrics == nil {
		return
	}
	m.metrics.MessagesSent.WithLabelValues(t.String(), plane).Inc()
	m.metrics.BytesSent.WithLabelValues(plane).Add(float64(payloadLen))
}

func (m *Mesh) countDropped(reason string) {
	if m.metrics == nil {
		return
	}
	m.metrics.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Mesh) countForwarded(t MessageType) {
	if m.metrics == nil {
		return
	}
	m.metrics.MessagesForwarded.WithLabelValues(t.String()).Inc()
}
