package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8888, cfg.ControlPort)
	assert.Equal(t, 8889, cfg.AudioPort())
	assert.Equal(t, 10*time.Second, cfg.DiscoveryInterval)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.NodeTimeout)
	assert.Equal(t, 60*time.Second, cfg.MaxRouteAge)
	assert.Equal(t, time.Minute, cfg.DedupRetention)
	assert.Equal(t, 5*time.Second, cfg.ResponseInterval)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisplayName = "alice"
	require.NoError(t, cfg.Validate())

	t.Run("missing display name", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Error(t, cfg.Validate())
	})

	t.Run("port out of range", func(t *testing.T) {
		for _, port := range []int{0, -1, 65535, 70000} {
			cfg := DefaultConfig()
			cfg.DisplayName = "alice"
			cfg.ControlPort = port
			assert.Error(t, cfg.Validate(), "port %d", port)
		}
	})

	t.Run("zero durations get defaults", func(t *testing.T) {
		cfg := Config{DisplayName: "alice", ControlPort: 9000}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 10*time.Second, cfg.DiscoveryInterval)
		assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
		assert.Equal(t, time.Minute, cfg.DedupRetention)
		assert.Equal(t, 20, cfg.ScanBatchSize)
	})

	t.Run("explicit values survive", func(t *testing.T) {
		cfg := Config{
			DisplayName:       "alice",
			ControlPort:       9000,
			DiscoveryInterval: time.Second,
		}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, time.Second, cfg.DiscoveryInterval)
	})
}
