package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Routing mode names
const (
	RoutingPhysical = "physical"
	RoutingVirtual  = "virtual"
)

// Config represents the application configuration
type Config struct {
	Server         ServerConfig       `koanf:"server"`
	Routing        RoutingConfig      `koanf:"routing"`
	Topology       TopologyConfig     `koanf:"topology"`
	Thresholds     ThresholdsConfig   `koanf:"thresholds"`
	Telemetry      TelemetryConfig    `koanf:"telemetry"`
	Recovery       RecoveryConfig     `koanf:"recovery"`
	HealthCheck    HealthCheckConfig  `koanf:"health_check"`
	Downstreams    []DownstreamConfig `koanf:"downstreams"`
	ForwardTimeout time.Duration      `koanf:"forward_timeout"`
	LogLevel       string             `koanf:"log_level"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	BasePath     string        `koanf:"base_path"` // Optional base path for reverse proxy
}

// RoutingConfig selects how batches traverse the overlay
type RoutingConfig struct {
	Mode         string `koanf:"mode"`          // physical | virtual
	Primary      string `koanf:"primary"`       // edge | cloud
	FailoverMode string `koanf:"failover_mode"` // reactive | warm | cold | predictive
}

// TopologyConfig locates the topology descriptor
type TopologyConfig struct {
	File string `koanf:"file"`
}

// ThresholdsConfig carries the predictive trigger limits
type ThresholdsConfig struct {
	EWMAMaxMs      float64       `koanf:"ewma_max_ms"`
	SlopeMinMsPerS float64       `koanf:"slope_min_ms_per_s"`
	Hold           time.Duration `koanf:"hold"`
	CPUMax         float64       `koanf:"cpu_max"`
	BufferMaxPct   float64       `koanf:"buffer_max_pct"`
}

// TelemetryConfig tunes the latency statistics
type TelemetryConfig struct {
	Alpha      float64 `koanf:"alpha"`
	WindowSize int     `koanf:"window_size"`
}

// RecoveryConfig tunes the recovery state machine and gradual revert
type RecoveryConfig struct {
	Hold               time.Duration `koanf:"hold"`
	Stability          time.Duration `koanf:"stability"`
	TransitionDuration time.Duration `koanf:"transition_duration"`
	RevertSteps        int           `koanf:"revert_steps"`
	StepperInterval    time.Duration `koanf:"stepper_interval"`
}

// HealthCheckConfig represents downstream node health polling
type HealthCheckConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Interval        time.Duration `koanf:"interval"`
	Timeout         time.Duration `koanf:"timeout"`
	FailedThreshold int           `koanf:"failed_threshold"`
}

// DownstreamConfig represents a single downstream tier server
type DownstreamConfig struct {
	Name    string     `koanf:"name"`
	Tier    string     `koanf:"tier"`
	Address string     `koanf:"address"`
	TLS     *TLSConfig `koanf:"tls"`
}

// TLSConfig represents client TLS material for a downstream connection
type TLSConfig struct {
	CA   string `koanf:"ca"`
	Cert string `koanf:"cert"`
	Key  string `koanf:"key"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Topology.File == "" {
		return fmt.Errorf("topology.file is required")
	}

	switch c.Routing.Mode {
	case "", RoutingPhysical, RoutingVirtual:
	default:
		return fmt.Errorf("routing.mode must be physical or virtual, got %q", c.Routing.Mode)
	}

	switch c.Routing.Primary {
	case "", "edge", "cloud":
	default:
		return fmt.Errorf("routing.primary must be edge or cloud, got %q", c.Routing.Primary)
	}

	switch c.Routing.FailoverMode {
	case "", "reactive", "warm", "cold", "predictive":
	default:
		return fmt.Errorf("routing.failover_mode must be one of reactive, warm, cold, predictive, got %q", c.Routing.FailoverMode)
	}

	// zero means "use the built-in default" throughout
	if c.Telemetry.Alpha < 0 || c.Telemetry.Alpha > 1 {
		return fmt.Errorf("telemetry.alpha must be in (0,1], got %v", c.Telemetry.Alpha)
	}

	if c.Telemetry.WindowSize < 0 || c.Telemetry.WindowSize == 1 {
		return fmt.Errorf("telemetry.window_size must be at least 2, got %d", c.Telemetry.WindowSize)
	}

	if c.HealthCheck.Enabled {
		if c.HealthCheck.Interval < 0 {
			return fmt.Errorf("health_check.interval must not be negative")
		}
		if c.HealthCheck.FailedThreshold < 0 {
			return fmt.Errorf("health_check.failed_threshold must not be negative")
		}
	}

	for i, d := range c.Downstreams {
		if d.Name == "" || d.Address == "" {
			return fmt.Errorf("downstreams[%d]: name and address are required", i)
		}
	}

	return nil
}
