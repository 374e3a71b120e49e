package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/pkg/retry"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, TransportTCP, cfg.Output.Type)
	assert.Equal(t, "sim", cfg.Device.Driver)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"driver", func(c *Config) { c.Device.Driver = "k4w2" }},
		{"retry delay", func(c *Config) { c.Device.RetryDelay = 0 }},
		{"output type", func(c *Config) { c.Output.Type = "udp" }},
		{"input type", func(c *Config) { c.Input.Type = "" }},
		{"pipeline", func(c *Config) { c.Pipeline.OutputHighWater = 0 }},
		{"nats urls", func(c *Config) {
			c.Output.Type = TransportNATS
			c.NATS.URLs = nil
		}},
		{"metrics address", func(c *Config) { c.Metrics.Address = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
		})
	}
}

func TestLoadYAMLLayer(t *testing.T) {
	path := writeFile(t, "logger.yaml", `
log:
  level: debug
device:
  retry_delay: 1s
  sim:
    frame_rate: 15
pipeline:
  status_interval: 2s
capture:
  color:
    workers: 4
  speech:
    enabled: false
output:
  type: file
  file:
    path: /tmp/out.stream
    flush_interval: 100ms
nats:
  max_age: 7d
`)
	_, err := NewLoader().LoadFile(path)
	require.Error(t, err, "max_age belongs to output.nats")

	path = writeFile(t, "logger.yaml", `
log:
  level: debug
device:
  retry_delay: 1s
  sim:
    frame_rate: 15
pipeline:
  status_interval: 2s
capture:
  color:
    workers: 4
  speech:
    enabled: false
output:
  type: file
  file:
    path: /tmp/out.stream
    flush_interval: 100ms
  nats:
    max_age: 7d
`)
	l := NewLoader()
	l.EnableValidation(true)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "untouched defaults survive")
	assert.Equal(t, time.Second, cfg.Device.RetryDelay)
	assert.Equal(t, 15.0, cfg.Device.Sim.FrameRate)
	assert.Equal(t, 1920, cfg.Device.Sim.ColorWidth)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.StatusInterval)
	assert.Equal(t, 4, cfg.Capture.Color.Workers)
	assert.Equal(t, "binary", cfg.Capture.Color.Codec)
	assert.False(t, cfg.Capture.Speech.Enabled)
	assert.True(t, cfg.Capture.Depth.Enabled)
	assert.Equal(t, TransportFile, cfg.Output.Type)
	assert.Equal(t, "/tmp/out.stream", cfg.Output.File.Path)
	assert.Equal(t, 100*time.Millisecond, cfg.Output.File.FlushInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Output.NATS.MaxAge)
}

func TestLoadLayersOverride(t *testing.T) {
	base := writeFile(t, "base.json", `{
  "log": {"level": "warn", "format": "json"},
  "output": {"type": "websocket", "websocket": {"address": ":8765", "ping_interval": 5000000000}}
}`)
	site := writeFile(t, "site.yml", `
log:
  level: error
output:
  websocket:
    path: /kinect
`)

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(site)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, TransportWebSocket, cfg.Output.Type)
	assert.Equal(t, ":8765", cfg.Output.WebSocket.Address)
	assert.Equal(t, "/kinect", cfg.Output.WebSocket.Path)
	assert.Equal(t, 5*time.Second, cfg.Output.WebSocket.PingInterval)
}

func TestLoadSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "bogus: 1\n"},
		{"bad enum", "output:\n  type: carrier-pigeon\n"},
		{"bad codec", "capture:\n  depth:\n    codec: lz4\n"},
		{"bad duration", "pipeline:\n  pause: soon\n"},
		{"wrong type", "metrics:\n  enabled: maybe\n"},
		{"attempts below forever", "input:\n  tcp:\n    dial_attempts: -2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(writeFile(t, "c.yaml", tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoadForeverAttempts(t *testing.T) {
	content := "input:\n  tcp:\n    dial_attempts: -1\n  websocket:\n    dial_attempts: -1\n" +
		"output:\n  tcp:\n    bind_attempts: -1\n"
	l := NewLoader()
	l.EnableValidation(true)
	cfg, err := l.LoadFile(writeFile(t, "c.yaml", content))
	require.NoError(t, err)
	assert.Equal(t, retry.Forever, cfg.Input.TCP.DialAttempts)
	assert.Equal(t, retry.Forever, cfg.Input.WebSocket.DialAttempts)
	assert.Equal(t, retry.Forever, cfg.Output.TCP.BindAttempts)
}

func TestLoadRejectsPaths(t *testing.T) {
	_, err := NewLoader().LoadFile(writeFile(t, "c.toml", "x = 1"))
	assert.Error(t, err)

	_, err = NewLoader().LoadFile("../../outside.json")
	assert.Error(t, err)

	_, err = NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KINECT_LOG_LEVEL", "DEBUG")
	t.Setenv("KINECT_OUTPUT_TYPE", "nats")
	t.Setenv("KINECT_NATS_URLS", "nats://a:4222,nats://b:4222")
	t.Setenv("KINECT_NATS_TOKEN", "secret")

	l := NewLoader()
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, TransportNATS, cfg.Output.Type)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "nats://a:4222,nats://b:4222", cfg.NATS.URL())
	assert.NotContains(t, cfg.String(), "secret")
	assert.Equal(t, "secret", cfg.NATS.Token, "String masks a copy")
}

func TestValidateEnvVar(t *testing.T) {
	assert.NoError(t, validateEnvVar("KINECT_LOG_LEVEL", "debug"))
	assert.Error(t, validateEnvVar("KINECT_OUTPUT_FILE", "a\x00b"))
	assert.Error(t, validateEnvVar("KINECT_NATS_TOKEN", string(make([]byte, maxEnvVarLen+1))))
}

func TestParseDurationWithDays(t *testing.T) {
	d, err := parseDurationWithDays("3d")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, d)

	d, err = parseDurationWithDays("1h30m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = parseDurationWithDays("xd")
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output.Type = TransportFile
	cfg.Output.File.Path = filepath.Join(dir, "session.stream")
	cfg.Pipeline.Pause = 40 * time.Millisecond

	for _, name := range []string{"saved.json", "saved.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, cfg.SaveToFile(path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			l := NewLoader()
			l.EnableValidation(true)
			loaded, err := l.LoadFile(path)
			require.NoError(t, err)
			if diff := cmp.Diff(cfg, loaded); diff != "" {
				t.Errorf("reloaded config mismatch (-saved +loaded):\n%s", diff)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.NATS.URLs[0] = "nats://elsewhere:4222"
	clone.Device.Sim.Phrases[0] = "bye"

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URLs[0])
	assert.Equal(t, "hello", cfg.Device.Sim.Phrases[0])
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	got := sc.Get()
	got.Log.Level = "debug"
	assert.Equal(t, "info", sc.Get().Log.Level)

	bad := DefaultConfig()
	bad.Log.Level = "loud"
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))

	good := DefaultConfig()
	good.Log.Level = "warn"
	require.NoError(t, sc.Update(good))
	assert.Equal(t, "warn", sc.Get().Log.Level)
}

func TestSchemaCompiles(t *testing.T) {
	_, err := compiledSchema()
	require.NoError(t, err)
	assert.NotEmpty(t, Schema())
}
