package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "KINECT"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables Config.Validate after loading.
// Schema checks on each layer always run.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load starts from DefaultConfig, merges every layer over it, then applies
// environment overrides.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(DefaultConfig())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, err
		}
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads one layer into a generic map with durations already in
// nanoseconds.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := formatOf(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", path)
	}

	raw, err := decode(f, data)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "parse "+path)
	}
	if err := checkNesting(raw, 0); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", path)
	}
	if err := validateSchema(raw); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", path)
	}
	if err := parseDurations(raw, reflect.TypeOf(Config{}), ""); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", path)
	}
	return raw, nil
}

func decode(f format, data []byte) (map[string]any, error) {
	raw := map[string]any{}
	switch f {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func encode(path string, c *Config) ([]byte, error) {
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	if f == formatYAML {
		return yaml.Marshal(c)
	}
	return json.MarshalIndent(c, "", "  ")
}

func toMap(c *Config) (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return decode(formatJSON, data)
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if bm, ok := base[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(bm, om)
				continue
			}
		}
		result[k] = v
	}
	return result
}

var durationType = reflect.TypeOf(time.Duration(0))

// parseDurations walks raw alongside the struct type t and replaces every
// duration string ("250ms", "7d") with its nanosecond count.
func parseDurations(raw map[string]any, t reflect.Type, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := jsonName(field)
		if name == "" {
			continue
		}
		v, ok := raw[name]
		if !ok {
			continue
		}

		switch {
		case field.Type == durationType:
			s, ok := v.(string)
			if !ok {
				continue
			}
			d, err := parseDurationWithDays(s)
			if err != nil {
				return fmt.Errorf("%s%s: %w", prefix, name, err)
			}
			raw[name] = d.Nanoseconds()
		case field.Type.Kind() == reflect.Struct:
			if sub, ok := v.(map[string]any); ok {
				if err := parseDurations(sub, field.Type, prefix+name+"."); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// parseDurationWithDays extends time.ParseDuration with a whole-day "Nd" form.
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies <PREFIX>_* environment variables on top of the
// loaded files.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		key   string
		apply func(string)
	}{
		{"LOG_LEVEL", func(v string) { cfg.Log.Level = strings.ToLower(v) }},
		{"LOG_FORMAT", func(v string) { cfg.Log.Format = strings.ToLower(v) }},
		{"OUTPUT_TYPE", func(v string) { cfg.Output.Type = v }},
		{"INPUT_TYPE", func(v string) { cfg.Input.Type = v }},
		{"OUTPUT_FILE", func(v string) { cfg.Output.File.Path = v }},
		{"INPUT_FILE", func(v string) { cfg.Input.File.Path = v }},
		{"NATS_URLS", func(v string) { cfg.NATS.URLs = strings.Split(v, ",") }},
		{"NATS_USERNAME", func(v string) { cfg.NATS.Username = v }},
		{"NATS_PASSWORD", func(v string) { cfg.NATS.Password = v }},
		{"NATS_TOKEN", func(v string) { cfg.NATS.Token = v }},
		{"METRICS_ADDRESS", func(v string) { cfg.Metrics.Address = v }},
	}

	for _, o := range overrides {
		key := l.envPrefix + "_" + o.key
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", key)
		}
		o.apply(val)
	}
	return nil
}
