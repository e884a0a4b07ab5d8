package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with layers and overrides.
// Layers are merged in order on top of Default(), last writer wins;
// environment variables override everything.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "TRENDSTREAMS",
	}
}

// AddLayer adds a configuration file layer.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges all configuration layers over the defaults, applies
// environment overrides, and optionally validates the result.
func (l *Loader) Load() (*Config, error) {
	// Start from the defaults as a raw map so file layers merge key
	// by key instead of replacing whole sections
	merged, err := toMap(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to build defaults: %w", err)
	}

	for _, path := range l.layers {
		layer, err := l.loadRawMap(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		merged = l.deepMergeMaps(merged, layer)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to decode merged configuration: %w", err)
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRawMap loads one configuration file into a raw map. YAML files are
// normalized through a JSON round trip so both formats merge identically.
func (l *Loader) loadRawMap(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	if isYAMLPath(path) {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		data, err = json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("cannot normalize YAML: %w", err)
		}
	}

	// Validate JSON depth to prevent DoS
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	l.normalizeDurations(raw)

	return raw, nil
}

func isYAMLPath(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}

// normalizeDurations rewrites duration strings in the raw map to
// nanosecond numbers so they unmarshal into time.Duration fields.
// Unparseable strings are left in place for unmarshaling to report.
func (l *Loader) normalizeDurations(data map[string]any) {
	normalizeDuration(section(data, "pipeline"), "bucket_width")
	normalizeDuration(section(data, "pipeline"), "unit_timeout")
	normalizeDuration(section(data, "nats"), "reconnect_wait")
	normalizeDuration(section(data, "evaluator"), "timeout")
	normalizeDuration(section(section(data, "output"), "enriched"), "flush_interval")
}

// section returns a nested map by key, nil when absent or mistyped.
func section(data map[string]any, key string) map[string]any {
	if data == nil {
		return nil
	}
	m, _ := data[key].(map[string]any)
	return m
}

func normalizeDuration(m map[string]any, key string) {
	if m == nil {
		return
	}
	if s, ok := m[key].(string); ok {
		if d, err := parseDurationWithDays(s); err == nil {
			m[key] = d.Nanoseconds()
		}
	}
}

// parseDurationWithDays parses durations that may include days (e.g. "14d").
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)

	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}

		// If both sides carry maps at this key, merge them
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		result[k] = v
	}

	return result
}

// toMap converts a Config to its raw map form.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fromMap converts a raw map back to a Config.
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

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := l.env("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	// Pipeline overrides
	if val := l.env("PIPELINE_BUCKET_WIDTH"); val != "" {
		if d, err := parseDurationWithDays(val); err == nil {
			cfg.Pipeline.BucketWidth = d
		}
	}
	if val := l.env("PIPELINE_ZERO_FILL"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Pipeline.ZeroFill = b
		}
	}
	if val := l.env("PIPELINE_TIMESTAMP_FIELD_PATH"); val != "" {
		cfg.Pipeline.TimestampFieldPath = val
	}
	if val := l.env("PIPELINE_EPOCH_ANCHOR"); val != "" {
		cfg.Pipeline.EpochAnchor = val
	}
	if val := l.env("PIPELINE_ENRICH_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Pipeline.EnrichWorkers = n
		}
	}

	// Input overrides
	if val := l.env("INPUT_SOURCE"); val != "" {
		cfg.Input.Source = val
	}
	if val := l.env("INPUT_PATH"); val != "" {
		cfg.Input.Path = val
	}
	if val := l.env("INPUT_URL"); val != "" {
		cfg.Input.URL = val
	}

	// Output overrides
	if val := l.env("OUTPUT_TABLE_PATH"); val != "" {
		cfg.Output.Table.Path = val
	}
	if val := l.env("OUTPUT_ENRICHED_PATH"); val != "" {
		cfg.Output.Enriched.Path = val
	}

	// NATS overrides
	if val := l.env("NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := l.env("NATS_SUBJECT"); val != "" {
		cfg.NATS.Subject = val
	}
	if val := l.env("NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := l.env("NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := l.env("NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}

	// Metrics overrides
	if val := l.env("METRICS_LISTEN_ADDR"); val != "" {
		cfg.Metrics.ListenAddr = val
	}

	// Evaluator overrides
	if val := l.env("EVALUATOR_URL"); val != "" {
		cfg.Evaluator.URL = val
	}
}

// env reads one prefixed environment variable, dropping values that fail
// basic validation.
func (l *Loader) env(name string) string {
	key := l.envPrefix + "_" + name
	val := os.Getenv(key)
	if val == "" {
		return ""
	}
	if err := validateEnvVar(key, val); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "WARNING: ignoring %s: %v\n", key, err)
		return ""
	}
	return val
}
