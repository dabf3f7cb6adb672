package mesh

import (
	"errors"
	"fmt"
	"time"
)

// Config contains mesh session configuration.
type Config struct {
	// DisplayName is the friendly name announced for this node.
	DisplayName string `yaml:"display_name" json:"display_name"`

	// ControlPort is the control-plane UDP port. The data plane (audio)
	// listens on ControlPort+1.
	ControlPort int `yaml:"control_port" json:"control_port"`

	// DiscoveryInterval is how often to broadcast this node's identity
	// (default: 10s).
	DiscoveryInterval time.Duration `yaml:"discovery_interval" json:"discovery_interval"`

	// HeartbeatInterval is how often to probe known nodes (default: 5s).
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`

	// MaintenanceInterval is how often to sweep stale state (default: 5s).
	MaintenanceInterval time.Duration `yaml:"maintenance_interval" json:"maintenance_interval"`

	// NodeTimeout is how long before an unheard node is evicted
	// (default: 30s).
	NodeTimeout time.Duration `yaml:"node_timeout" json:"node_timeout"`

	// MaxRouteAge is how long before a stale route is evicted
	// (default: 60s).
	MaxRouteAge time.Duration `yaml:"max_route_age" json:"max_route_age"`

	// DedupRetention is how long processed message IDs are remembered
	// (default: 1m).
	DedupRetention time.Duration `yaml:"dedup_retention" json:"dedup_retention"`

	// ResponseInterval is the minimum spacing between discovery responses
	// to the same sender (default: 5s).
	ResponseInterval time.Duration `yaml:"response_interval" json:"response_interval"`

	// ResponseRetention is how long idle rate-limit entries are kept
	// (default: 5m).
	ResponseRetention time.Duration `yaml:"response_retention" json:"response_retention"`

	// ConnectDebounce suppresses direct-connect attempts to nodes updated
	// this recently (default: 30s).
	ConnectDebounce time.Duration `yaml:"connect_debounce" json:"connect_debounce"`

	// ConnectCooldown is the minimum spacing between connection attempts
	// to the same address (default: 10s).
	ConnectCooldown time.Duration `yaml:"connect_cooldown" json:"connect_cooldown"`

	// ConnectTimeout bounds a single direct-connect attempt; if no
	// discovery response arrives the in-progress flag is reset and an
	// error is surfaced (default: 15s).
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// ScanProbeTimeout is the per-host reachability probe timeout during
	// an active subnet scan (default: 300ms).
	ScanProbeTimeout time.Duration `yaml:"scan_probe_timeout" json:"scan_probe_timeout"`

	// ScanBatchSize is the number of concurrent scan probes (default: 20).
	ScanBatchSize int `yaml:"scan_batch_size" json:"scan_batch_size"`

	// ScanBatchPause is the pause between scan batches (default: 100ms).
	ScanBatchPause time.Duration `yaml:"scan_batch_pause" json:"scan_batch_pause"`
}

// DefaultConfig returns a mesh configuration with the protocol defaults.
func DefaultConfig() Config {
	return Config{
		ControlPort:         8888,
		DiscoveryInterval:   10 * time.Second,
		HeartbeatInterval:   5 * time.Second,
		MaintenanceInterval: 5 * time.Second,
		NodeTimeout:         30 * time.Second,
		MaxRouteAge:         60 * time.Second,
		DedupRetention:      time.Minute,
		ResponseInterval:    5 * time.Second,
		ResponseRetention:   5 * time.Minute,
		ConnectDebounce:     30 * time.Second,
		ConnectCooldown:     10 * time.Second,
		ConnectTimeout:      15 * time.Second,
		ScanProbeTimeout:    300 * time.Millisecond,
		ScanBatchSize:       20,
		ScanBatchPause:      100 * time.Millisecond,
	}
}

// Validate validates the mesh configuration, filling defaults for unset
// durations.
func (c *Config) Validate() error {
	if c.ControlPort <= 0 || c.ControlPort > 65534 {
		return fmt.Errorf("mesh: control_port must be in 1..65534, got %d", c.ControlPort)
	}

	if c.DisplayName == "" {
		return errors.New("mesh: display_name is required")
	}

	defaults := DefaultConfig()
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = defaults.DiscoveryInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = defaults.MaintenanceInterval
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = defaults.NodeTimeout
	}
	if c.MaxRouteAge <= 0 {
		c.MaxRouteAge = defaults.MaxRouteAge
	}
	if c.DedupRetention <= 0 {
		c.DedupRetention = defaults.DedupRetention
	}
	if c.ResponseInterval <= 0 {
		c.ResponseInterval = defaults.ResponseInterval
	}
	if c.ResponseRetention <= 0 {
		c.ResponseRetention = defaults.ResponseRetention
	}
	if c.ConnectDebounce <= 0 {
		c.ConnectDebounce = defaults.ConnectDebounce
	}
	if c.ConnectCooldown <= 0 {
		c.ConnectCooldown = defaults.ConnectCooldown
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.ScanProbeTimeout <= 0 {
		c.ScanProbeTimeout = defaults.ScanProbeTimeout
	}
	if c.ScanBatchSize <= 0 {
		c.ScanBatchSize = defaults.ScanBatchSize
	}
	if c.ScanBatchPause <= 0 {
		c.ScanBatchPause = defaults.ScanBatchPause
	}

	return nil
}

// AudioPort returns the data-plane port.
func (c *Config) AudioPort() int {
	return c.ControlPort + 1
}
