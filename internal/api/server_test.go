package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanvoice/meshtalk/internal/mesh"
	"github.com/lanvoice/meshtalk/internal/metrics"
)

func newTestServer(t *testing.T) (*Server, *mesh.Mesh) {
	t.Helper()

	cfg := mesh.DefaultConfig()
	cfg.DisplayName = "api-test"

	network := mesh.NewMemoryNetwork()
	session, err := mesh.New("node-api", cfg, network.Host("10.0.0.1", "10.0.0.255"), nil)
	require.NoError(t, err)

	return New(DefaultConfig(), session, metrics.New()), session
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Router(), "/api/v1/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Router(), "/api/v1/status")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		NodeID  string `json:"node_id"`
		Running bool   `json:"running"`
		Nodes   int    `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "node-api", body.NodeID)
	assert.False(t, body.Running)
	assert.Zero(t, body.Nodes)
}

func TestNodesEndpointEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Router(), "/api/v1/nodes")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Nodes []nodeView `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Nodes, "empty list, not null")
	assert.Empty(t, body.Nodes)
}

func TestRoutesEndpointEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Router(), "/api/v1/routes")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Routes []routeView `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Routes)
}

func TestVersionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Router(), "/api/v1/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "version")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Router(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meshtalk_")
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Router(), "/api/v1/bogus")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)

	cfg.Enabled = true
	cfg.Listen = ""
	assert.Error(t, cfg.Validate())
}

func TestStartDisabledIsNoOp(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Stop(context.Background()))
}
