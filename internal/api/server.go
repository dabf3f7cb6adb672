// Package api provides the local REST status API for meshtalk.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lanvoice/meshtalk/internal/mesh"
	"github.com/lanvoice/meshtalk/internal/metrics"
	"github.com/lanvoice/meshtalk/internal/version"
)

// Config holds API server configuration.
type Config struct {
	// Enabled controls whether the status API is served (default: false).
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen is the local address to serve on (default: 127.0.0.1:9090).
	Listen string `yaml:"listen" json:"listen"`
}

// DefaultConfig returns the default API configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Listen:  "127.0.0.1:9090",
	}
}

// Validate validates the API configuration.
func (c *Config) Validate() error {
	if c.Enabled && c.Listen == "" {
		return errors.New("api: listen address is required when enabled")
	}
	return nil
}

// Server exposes the mesh's status projection and metrics over HTTP.
type Server struct {
	cfg     Config
	session *mesh.Mesh
	metrics *metrics.Metrics
	httpSrv *http.Server
}

// New creates an API server for the given mesh session.
func New(cfg Config, session *mesh.Mesh, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		session: session,
		metrics: m,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/version", s.handleVersion)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/nodes", s.handleNodes)
	r.Get("/api/v1/routes", s.handleRoutes)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

// Start serves the API in the background.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("status api listening", "addr", s.cfg.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status api failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts the API down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// nodeView is the JSON projection of a mesh node.
type nodeView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Address     string    `json:"address"`
	Port        int       `json:"port"`
	IsDirect    bool      `json:"is_direct"`
	LastSeen    time.Time `json:"last_seen"`
	HopCount    int       `json:"hop_count"`
}

// routeView is the JSON projection of a route entry.
type routeView struct {
	DestinationID string    `json:"destination_id"`
	NextHopID     string    `json:"next_hop_id"`
	HopCount      int       `json:"hop_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id": s.session.LocalID(),
		"running": s.session.Running(),
		"nodes":   len(s.session.Nodes()),
	})
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.session.Nodes()
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, nodeView{
			ID:          n.ID,
			DisplayName: n.DisplayName,
			Address:     n.Address,
			Port:        n.Port,
			IsDirect:    n.IsDirect,
			LastSeen:    n.LastSeen,
			HopCount:    n.HopCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": views})
}

func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	routes := s.session.Routes()
	views := make([]routeView, 0, len(routes))
	for _, r := range routes {
		views = append(views, routeView{
			DestinationID: r.DestinationID,
			NextHopID:     r.NextHopID,
			HopCount:      r.HopCount,
			LastUpdated:   r.LastUpdated,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": views})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}
