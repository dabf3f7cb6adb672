package mesh

import (
	"context"
	"log/slog"
	"time"
)

// maintenanceLoop periodically evicts stale nodes, routes, dedup entries
// and rate-limit entries, republishing the connected-nodes projection when
// anything was removed.
func (m *Mesh) maintenanceLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runMaintenance(time.Now())
		}
	}
}

// runMaintenance performs one sweep cycle.
func (m *Mesh) runMaintenance(now time.Time) {
	evicted := m.nodes.EvictExpired(now, m.cfg.NodeTimeout, m.cfg.MaxRouteAge)

	m.seen.Sweep(now)
	m.responses.Sweep(now)

	if len(evicted) > 0 {
		slog.Info("maintenance evicted nodes", "count", len(evicted), "node_ids", evicted)
		m.recomputeRoutes()
		m.publishNodes()
	}
}

// recomputeRoutes is the extension point for distance-vector route
// recomputation after topology changes. Only trivial one-hop routes exist
// today: every discovered peer gets a direct route at upsert time, and
// nothing installs multi-hop paths. A future routing algorithm (processing
// ROUTE_UPDATE messages) plugs in here.
func (m *Mesh) recomputeRoutes() {
	// Intentionally empty. See handleRouteUpdate in listener.go.
}
