package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Well-known subnet broadcast addresses tried when interface enumeration
// fails. Covers the common home/AP-mode /24 networks.
var fallbackBroadcasts = []string{
	"255.255.255.255",
	"192.168.1.255",
	"192.168.0.255",
	"192.168.49.255", // WiFi Direct group-owner subnet
}

// discoveryLoop periodically announces the local node's identity to every
// broadcast-capable address in range.
func (m *Mesh) discoveryLoop(ctx context.Context) {
	defer m.wg.Done()

	// Announce immediately so peers learn about us before the first tick.
	m.broadcastPresence()

	ticker := time.NewTicker(m.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.broadcastPresence()
		}
	}
}

// discoveryPayload is the announced identity: "<nodeId>|<displayName>".
func (m *Mesh) discoveryPayload() []byte {
	return []byte(m.localID + "|" + m.displayName)
}

// broadcastPresence sends one DISCOVERY broadcast per active interface,
// falling back to well-known broadcast addresses when enumeration fails.
func (m *Mesh) broadcastPresence() {
	targets := make([]string, 0, 4)

	ifaces, err := m.transport.ActiveInterfaces()
	if err != nil || len(ifaces) == 0 {
		if err != nil {
			slog.Warn("interface enumeration failed, using fallback broadcasts", "error", err)
		}
		targets = append(targets, fallbackBroadcasts...)
	} else {
		for _, ia := range ifaces {
			targets = append(targets, ia.Broadcast)
		}
	}

	msg := NewMessage(m.localID, BroadcastID, MsgTypeDiscovery, m.discoveryPayload())

	for _, addr := range targets {
		m.sendControl(msg, addr, m.cfg.ControlPort)
	}

	slog.Debug("presence broadcast", "targets", len(targets))
}

// handleDiscovery processes an inbound DISCOVERY message: upsert the
// announcing node and, subject to per-sender rate limiting, unicast a
// DISCOVERY reply so the sender completes its mirror-image upsert even if
// it never received our broadcast.
func (m *Mesh) handleDiscovery(msg *Message, senderAddress string) {
	remoteID, displayName, ok := parseDiscoveryPayload(msg.Payload)
	if !ok {
		slog.Warn("malformed discovery payload",
			"source", msg.SourceID,
			"sender", senderAddress,
		)
		m.countDropped("malformed_payload")
		return
	}

	m.nodes.Upsert(remoteID, displayName, senderAddress, m.cfg.ControlPort, 1, false)
	m.publishNodes()

	if !m.responses.Allow(senderAddress) {
		if m.metrics != nil {
			m.metrics.ResponsesLimited.Inc()
		}
		return
	}

	reply := NewMessage(m.localID, remoteID, MsgTypeDiscovery, m.discoveryPayload())
	m.sendControl(reply, senderAddress, m.cfg.ControlPort)
}

// parseDiscoveryPayload extracts the first two pipe-separated fields of a
// discovery payload. Display names are not validated for embedded pipes;
// only the first split matters.
func parseDiscoveryPayload(payload []byte) (nodeID, displayName string, ok bool) {
	parts := strings.SplitN(string(payload), "|", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// directConnectProbes is how many unicast DISCOVERY probes a direct
// connect sends, and their spacing.
const (
	directConnectProbes     = 3
	directConnectProbeSpace = 500 * time.Millisecond
)

// AddDirectConnection seeds the mesh with a known peer address. The peer
// is only materialized in the node table once a real DISCOVERY response
// arrives; no entry is fabricated speculatively.
//
// Expected control-flow rejections: the address is our own, a connection
// attempt is already in flight, the cooldown for this address has not
// elapsed, or the node was updated recently (debounce, returns nil).
func (m *Mesh) AddDirectConnection(ctx context.Context, address string, port int) error {
	if !m.running.Load() {
		return ErrNotRunning
	}
	if m.localAddresses()[address] {
		return ErrOwnAddress
	}

	// Debounce: a node we heard from recently needs no probing.
	derivedID := DeriveNodeID(address)
	if node, ok := m.nodes.Get(derivedID); ok {
		if time.Since(node.LastSeen) < m.cfg.ConnectDebounce {
			slog.Debug("direct connect debounced", "address", address)
			return nil
		}
	}

	m.mu.Lock()
	if last, ok := m.lastAttempt[address]; ok && time.Since(last) < m.cfg.ConnectCooldown {
		m.mu.Unlock()
		return ErrConnectCooldown
	}
	m.lastAttempt[address] = time.Now()
	m.mu.Unlock()

	// Single-flight: one direct-connect attempt at a time.
	if !m.connecting.CompareAndSwap(false, true) {
		return ErrConnectInFlight
	}
	defer m.connecting.Store(false)

	if m.metrics != nil {
		m.metrics.ConnectAttempts.Inc()
	}
	slog.Info("direct connect", "address", address, "port", port)

	probe := NewMessage(m.localID, BroadcastID, MsgTypeDiscovery, m.discoveryPayload())

	deadline := time.Now().Add(m.cfg.ConnectTimeout)
	for i := 0; i < directConnectProbes; i++ {
		m.sendControl(probe, address, port)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(directConnectProbeSpace):
		}
	}

	// Wait for the peer's DISCOVERY response to materialize a node entry.
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for time.Now().Before(deadline) {
		if m.hasNodeAt(address) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}

	return fmt.Errorf("%w: %s", ErrConnectTimeout, address)
}

// hasNodeAt reports whether any node entry carries the given address.
func (m *Mesh) hasNodeAt(address string) bool {
	for _, node := range m.nodes.All() {
		if node.Address == address {
			return true
		}
	}
	return false
}

// ScanAndConnect is the active fallback when passive discovery yields no
// peers: sweep the local /24 subnets, probe each host for reachability
// with a short timeout, and send a unicast DISCOVERY probe to responders.
// Probe failures are expected and silent. Concurrency is bounded by
// batching so the local link is not flooded.
func (m *Mesh) ScanAndConnect(ctx context.Context) error {
	if !m.running.Load() {
		return ErrNotRunning
	}

	ifaces, err := m.transport.ActiveInterfaces()
	if err != nil {
		return fmt.Errorf("mesh: scan failed: %w", err)
	}

	local := m.localAddresses()
	known := make(map[string]bool)
	for _, node := range m.nodes.All() {
		known[node.Address] = true
	}

	var candidates []string
	for _, ia := range ifaces {
		ip := net.ParseIP(ia.Address).To4()
		if ip == nil {
			continue
		}
		// /24 assumption: iterate host suffixes 1..254.
		for host := 1; host <= 254; host++ {
			addr := fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], host)
			if local[addr] || known[addr] {
				continue
			}
			candidates = append(candidates, addr)
		}
	}

	slog.Info("active scan started", "candidates", len(candidates))

	probe := NewMessage(m.localID, BroadcastID, MsgTypeDiscovery, m.discoveryPayload())

	for start := 0; start < len(candidates); start += m.cfg.ScanBatchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := start + m.cfg.ScanBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for _, addr := range candidates[start:end] {
			wg.Add(1)
			go func(addr string) {
				defer wg.Done()
				if m.metrics != nil {
					m.metrics.ScanProbes.Inc()
				}
				if !m.transport.IsReachable(addr, m.cfg.ControlPort, m.cfg.ScanProbeTimeout) {
					return
				}
				m.sendControl(probe, addr, m.cfg.ControlPort)
			}(addr)
		}
		wg.Wait()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.ScanBatchPause):
		}
	}

	slog.Info("active scan finished")
	return nil
}
