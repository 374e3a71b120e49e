package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/usc-rasc/kinect-bridge2/capture"
	"github.com/usc-rasc/kinect-bridge2/device/sim"
	"github.com/usc-rasc/kinect-bridge2/errors"
	infile "github.com/usc-rasc/kinect-bridge2/input/file"
	innats "github.com/usc-rasc/kinect-bridge2/input/nats"
	intcp "github.com/usc-rasc/kinect-bridge2/input/tcp"
	inws "github.com/usc-rasc/kinect-bridge2/input/websocket"
	outfile "github.com/usc-rasc/kinect-bridge2/output/file"
	outnats "github.com/usc-rasc/kinect-bridge2/output/nats"
	outtcp "github.com/usc-rasc/kinect-bridge2/output/tcp"
	outws "github.com/usc-rasc/kinect-bridge2/output/websocket"
	"github.com/usc-rasc/kinect-bridge2/pipeline"
)

// Transport types shared by outputs and inputs.
const (
	TransportFile      = "file"
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Config represents the complete application configuration. The logger
// reads Device, Pipeline, Capture and Output; the client reads Input.
type Config struct {
	Version  string          `json:"version"  yaml:"version"`
	Log      LogConfig       `json:"log"      yaml:"log"`
	Device   DeviceConfig    `json:"device"   yaml:"device"`
	Pipeline pipeline.Config `json:"pipeline" yaml:"pipeline"`
	Capture  capture.Config  `json:"capture"  yaml:"capture"`
	Output   OutputConfig    `json:"output"   yaml:"output"`
	Input    InputConfig     `json:"input"    yaml:"input"`
	NATS     NATSConfig      `json:"nats"     yaml:"nats"`
	Metrics  MetricsConfig   `json:"metrics"  yaml:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level"  yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DeviceConfig selects the acquisition device.
type DeviceConfig struct {
	Driver     string        `json:"driver"      yaml:"driver"`
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
	Sim        sim.Config    `json:"sim"         yaml:"sim"`
}

// OutputConfig selects where the logger writes its stream.
type OutputConfig struct {
	Type      string         `json:"type"      yaml:"type"`
	File      outfile.Config `json:"file"      yaml:"file"`
	TCP       outtcp.Config  `json:"tcp"       yaml:"tcp"`
	WebSocket outws.Config   `json:"websocket" yaml:"websocket"`
	NATS      outnats.Config `json:"nats"      yaml:"nats"`
}

// InputConfig selects where the client reads a stream from.
type InputConfig struct {
	Type      string        `json:"type"      yaml:"type"`
	File      infile.Config `json:"file"      yaml:"file"`
	TCP       intcp.Config  `json:"tcp"       yaml:"tcp"`
	WebSocket inws.Config   `json:"websocket" yaml:"websocket"`
	NATS      innats.Config `json:"nats"      yaml:"nats"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"           yaml:"urls,omitempty"`
	Name          string        `json:"name,omitempty"           yaml:"name,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"       yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty"       yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty"          yaml:"token,omitempty"`
}

// URL returns the comma-joined server list nats.Connect expects.
func (c NATSConfig) URL() string {
	return strings.Join(c.URLs, ",")
}

// MetricsConfig controls the /metrics and /health endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
	Path    string `json:"path"    yaml:"path"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Log:     LogConfig{Level: "info", Format: "text"},
		Device: DeviceConfig{
			Driver:     "sim",
			RetryDelay: 250 * time.Millisecond,
			Sim:        sim.DefaultConfig(),
		},
		Pipeline: pipeline.DefaultConfig(),
		Capture:  capture.DefaultConfig(),
		Output: OutputConfig{
			Type:      TransportTCP,
			File:      outfile.DefaultConfig(),
			TCP:       outtcp.DefaultConfig(),
			WebSocket: outws.DefaultConfig(),
			NATS:      outnats.DefaultConfig(),
		},
		Input: InputConfig{
			Type:      TransportTCP,
			File:      infile.Config{Path: "kinect.stream"},
			TCP:       intcp.DefaultConfig(),
			WebSocket: inws.DefaultConfig(),
			NATS:      innats.DefaultConfig(),
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			Name:          "kinect-bridge",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors. Only the selected output
// and input transports are validated.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("log.level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("log.format %q", c.Log.Format))
	}

	if c.Device.Driver != "sim" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("device.driver %q (supported: sim)", c.Device.Driver))
	}
	if c.Device.RetryDelay <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "device.retry_delay must be positive")
	}
	if err := c.Device.Sim.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "device.sim")
	}
	if err := c.Pipeline.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "pipeline")
	}
	if err := c.Capture.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "capture")
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	if err := c.Input.Validate(); err != nil {
		return err
	}
	if (c.Output.Type == TransportNATS || c.Input.Type == TransportNATS) && len(c.NATS.URLs) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.urls is required")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "metrics.address is required")
	}
	return nil
}

// Validate checks the selected transport.
func (c *OutputConfig) Validate() error {
	var err error
	switch c.Type {
	case TransportFile:
		err = c.File.Validate()
	case TransportTCP:
		err = c.TCP.Validate()
	case TransportWebSocket:
		err = c.WebSocket.Validate()
	case TransportNATS:
		err = c.NATS.Validate()
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "OutputConfig", "Validate",
			fmt.Sprintf("output.type %q", c.Type))
	}
	return errors.Wrap(err, "OutputConfig", "Validate", "output."+c.Type)
}

// Validate checks the selected transport.
func (c *InputConfig) Validate() error {
	var err error
	switch c.Type {
	case TransportFile:
		err = c.File.Validate()
	case TransportTCP:
		err = c.TCP.Validate()
	case TransportWebSocket:
		err = c.WebSocket.Validate()
	case TransportNATS:
		err = c.NATS.Validate()
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "InputConfig", "Validate",
			fmt.Sprintf("input.type %q", c.Type))
	}
	return errors.Wrap(err, "InputConfig", "Validate", "input."+c.Type)
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return DefaultConfig()
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// SaveToFile writes the configuration as JSON or YAML, by extension.
func (c *Config) SaveToFile(path string) error {
	data, err := encode(path, c)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "encode config")
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
