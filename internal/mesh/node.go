package mesh

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Node is the current knowledge about a peer's reachability. Entries are
// owned exclusively by the NodeTable; callers receive copies.
type Node struct {
	// ID uniquely identifies the peer.
	ID string

	// DisplayName is the peer's friendly name.
	DisplayName string

	// Address is the peer's IP address.
	Address string

	// Port is the peer's control-plane port.
	Port int

	// IsDirect indicates the peer was added via an explicit direct
	// connection rather than passive discovery.
	IsDirect bool

	// LastSeen is when the peer was last heard from.
	LastSeen time.Time

	// HopCount is the number of hops to reach the peer (>= 1).
	HopCount int
}

// AudioPort returns the peer's data-plane port. By convention the audio
// plane listens one port above the control plane.
func (n *Node) AudioPort() int {
	return n.Port + 1
}

// Route maps a destination node to the next hop to forward through.
// NextHopID equals DestinationID for direct one-hop routes.
type Route struct {
	DestinationID string
	NextHopID     string
	HopCount      int
	LastUpdated   time.Time
}

// DeriveNodeID derives a stable node ID from a peer's network address.
// Auto-discovered peers are keyed this way so repeated discoveries of the
// same host collapse into one entry.
func DeriveNodeID(address string) string {
	sum := sha256.Sum256([]byte(address))
	return "node-" + hex.EncodeToString(sum[:])[:16]
}

// NodeTable is the concurrent table of known peers and their one-hop
// routes. All mutation goes through Upsert/Touch/EvictExpired; loops never
// reach into entries directly.
type NodeTable struct {
	nodes  map[string]*Node
	routes map[string]*Route
	mu     sync.RWMutex
}

// NewNodeTable creates an empty node table.
func NewNodeTable() *NodeTable {
	return &NodeTable{
		nodes:  make(map[string]*Node),
		routes: make(map[string]*Route),
	}
}

// Upsert inserts or refreshes a node and its one-hop route. LastSeen is
// set to now; address, port and hop count are overwritten. Last write
// wins across concurrent upserts from different sources.
func (t *NodeTable) Upsert(id, displayName, address string, port, hopCount int, direct bool) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()

	node, exists := t.nodes[id]
	if !exists {
		node = &Node{ID: id}
		t.nodes[id] = node
	}
	node.DisplayName = displayName
	node.Address = address
	node.Port = port
	node.HopCount = hopCount
	node.LastSeen = now
	if direct {
		node.IsDirect = true
	}

	// One-hop route alongside every node. Multi-hop routes would be
	// installed by a distance-vector recompute, which does not exist;
	// see Mesh.recomputeRoutes.
	t.routes[id] = &Route{
		DestinationID: id,
		NextHopID:     id,
		HopCount:      hopCount,
		LastUpdated:   now,
	}

	if !exists {
		slog.Info("node discovered",
			"node_id", id,
			"name", displayName,
			"address", address,
			"port", port,
		)
	}

	return node.clone()
}

// Touch refreshes only a node's LastSeen. Returns false if the node is
// unknown; a heartbeat from an evicted node never recreates it.
func (t *NodeTable) Touch(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[id]
	if !ok {
		return false
	}
	node.LastSeen = time.Now()
	return true
}

// Get returns a copy of the node with the given ID.
func (t *NodeTable) Get(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	return node.clone(), true
}

// GetRoute returns a copy of the route for the given destination.
func (t *NodeTable) GetRoute(destinationID string) (*Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	route, ok := t.routes[destinationID]
	if !ok {
		return nil, false
	}
	r := *route
	return &r, true
}

// NextHop resolves the next-hop node for a destination. Returns false when
// either the route or the next-hop node entry is missing; forwarding is
// best-effort and the caller drops silently.
func (t *NodeTable) NextHop(destinationID string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	route, ok := t.routes[destinationID]
	if !ok {
		return nil, false
	}
	node, ok := t.nodes[route.NextHopID]
	if !ok {
		return nil, false
	}
	return node.clone(), true
}

// All returns copies of every known node, sorted by ID for stable
// iteration in broadcast-style sends and projections.
func (t *NodeTable) All() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodes := make([]*Node, 0, len(t.nodes))
	for _, node := range t.nodes {
		nodes = append(nodes, node.clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Routes returns copies of every route.
func (t *NodeTable) Routes() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	routes := make([]*Route, 0, len(t.routes))
	for _, route := range t.routes {
		r := *route
		routes = append(routes, &r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].DestinationID < routes[j].DestinationID })
	return routes
}

// Count returns the number of known nodes.
func (t *NodeTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// EvictExpired removes nodes unseen for longer than nodeTimeout and routes
// stale for longer than maxRouteAge, plus routes whose node went away.
// Returns the IDs of evicted nodes so dependents can republish the
// connected-nodes projection.
func (t *NodeTable) EvictExpired(now time.Time, nodeTimeout, maxRouteAge time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []string

	for id, node := range t.nodes {
		if now.Sub(node.LastSeen) > nodeTimeout {
			delete(t.nodes, id)
			delete(t.routes, id)
			evicted = append(evicted, id)
			slog.Info("node expired",
				"node_id", id,
				"name", node.DisplayName,
				"last_seen", node.LastSeen,
			)
		}
	}

	for dest, route := range t.routes {
		if now.Sub(route.LastUpdated) > maxRouteAge {
			delete(t.routes, dest)
			slog.Debug("route expired", "dest", dest, "via", route.NextHopID)
			continue
		}
		if _, ok := t.nodes[route.NextHopID]; !ok {
			delete(t.routes, dest)
			slog.Debug("route dropped, next hop gone", "dest", dest, "via", route.NextHopID)
		}
	}

	return evicted
}

func (n *Node) clone() *Node {
	c := *n
	return &c
}
