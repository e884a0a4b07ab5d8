package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/trendstreams/bucket"
	"github.com/c360/trendstreams/enrich"
	trenderrors "github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/pkg/timestamp"
	"github.com/c360/trendstreams/predicate"
)

// Input source constants
const (
	SourceStdin     = "stdin"     // NDJSON on standard input
	SourceFile      = "file"      // NDJSON file on disk
	SourceWebSocket = "websocket" // NDJSON frames over a WebSocket
)

// Evaluator comparison modes
const (
	ModeAbsolute = "absolute" // category percentages reported as-is
	ModeRelative = "relative" // category percentages relative to baseline
)

// Config is the complete run configuration. It is constructed once, validated
// before the first record is read, and passed explicitly into constructors.
// Nothing in the pipeline reads configuration from process-wide state.
type Config struct {
	LogLevel  string          `json:"log_level,omitempty"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Input     InputConfig     `json:"input"`
	Output    OutputConfig    `json:"output"`
	NATS      NATSConfig      `json:"nats,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
	Evaluator EvaluatorConfig `json:"evaluator,omitempty"`
}

// PipelineConfig holds the enrichment and aggregation options for a run.
type PipelineConfig struct {
	// BucketWidth is the aggregation window. Duration strings in config
	// files accept Go syntax plus a day suffix ("15m", "1h", "1d").
	BucketWidth time.Duration `json:"bucket_width"`

	// ZeroFill emits every bucket between the earliest and latest observed
	// bucket, including buckets no record fell into.
	ZeroFill bool `json:"zero_fill"`

	// EnrichmentUnits lists enrichment units by name, in execution order.
	// The configured order is authoritative: units are never reordered to
	// satisfy dependencies.
	EnrichmentUnits []enrich.UnitConfig `json:"enrichment_unit_list"`

	// MeasurementUnits lists measurement units by name.
	MeasurementUnits []measure.UnitConfig `json:"measurement_unit_list"`

	// TimestampFieldPath locates the record timestamp inside the document.
	TimestampFieldPath string `json:"timestamp_field_path"`

	// EpochAnchor aligns bucket boundaries. Accepts an RFC3339 string or a
	// Unix seconds/milliseconds number; nil means the Unix epoch.
	EpochAnchor any `json:"epoch_anchor,omitempty"`

	// MaxBuckets caps the span of a zero-filled table.
	MaxBuckets int `json:"max_buckets"`

	// BucketLabelLayout formats bucket start labels in serialized output.
	BucketLabelLayout string `json:"bucket_label_layout"`

	// EnrichWorkers sets the enrichment concurrency. 1 runs records
	// sequentially; higher values fan out through the ordered pool.
	EnrichWorkers int `json:"enrich_workers"`

	// UnitTimeout bounds a single unit invocation on a single record.
	// 0 leaves units unbounded unless they declare their own timeout.
	UnitTimeout time.Duration `json:"unit_timeout,omitempty"`
}

// InputConfig selects the record source.
type InputConfig struct {
	Source string `json:"source"`
	Path   string `json:"path,omitempty"` // file source
	URL    string `json:"url,omitempty"`  // websocket source

	// RateLimit throttles ingest to records per second. 0 is unlimited.
	RateLimit float64 `json:"rate_limit,omitempty"`
	RateBurst int     `json:"rate_burst,omitempty"`
}

// OutputConfig selects the run outputs.
type OutputConfig struct {
	Enriched EnrichedOutputConfig `json:"enriched,omitempty"`
	Table    TableOutputConfig    `json:"table"`
}

// EnrichedOutputConfig controls the enriched NDJSON stream.
type EnrichedOutputConfig struct {
	Enabled       bool          `json:"enabled"`
	Path          string        `json:"path,omitempty"` // empty or "-" writes stdout
	FlushInterval time.Duration `json:"flush_interval,omitempty"`
}

// TableOutputConfig controls the aggregate CSV output.
type TableOutputConfig struct {
	Path string `json:"path,omitempty"` // empty or "-" writes stdout
}

// NATSConfig defines the optional enriched-record fanout connection.
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URLs          []string      `json:"urls,omitempty"`
	Subject       string        `json:"subject,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// MetricsConfig controls the Prometheus surface.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty"`
	DumpOnExit bool   `json:"dump_on_exit,omitempty"`
}

// EvaluatorConfig defines the demographic-evaluator boundary. The two rule
// sets partition records into an analyzed group and a baseline group; records
// matching neither are left out of the comparison.
type EvaluatorConfig struct {
	Enabled   bool              `json:"enabled"`
	URL       string            `json:"url,omitempty"`
	Mode      string            `json:"mode,omitempty"`
	Timeout   time.Duration     `json:"timeout,omitempty"`
	BatchSize int               `json:"batch_size,omitempty"`
	Analyzed  predicate.RuleSet `json:"analyzed,omitempty"`
	Baseline  predicate.RuleSet `json:"baseline,omitempty"`
}

// Default returns the configuration a run gets before any file or
// environment override is applied.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			BucketWidth:        time.Hour,
			TimestampFieldPath: bucket.DefaultTimestampPath,
			MaxBuckets:         bucket.DefaultMaxBuckets,
			BucketLabelLayout:  bucket.DefaultLabelLayout,
			EnrichWorkers:      1,
		},
		Input: InputConfig{
			Source: SourceStdin,
		},
		Output: OutputConfig{
			Enriched: EnrichedOutputConfig{
				FlushInterval: time.Second,
			},
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			Subject:       "trendstreams.enriched",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9102",
		},
		Evaluator: EvaluatorConfig{
			Mode:      ModeAbsolute,
			Timeout:   30 * time.Second,
			BatchSize: 500,
		},
	}
}

// UnmarshalJSON accepts durations as Go duration strings (plus day
// suffixes) or as nanosecond numbers. File loading normalizes strings
// before unmarshaling; this keeps direct unmarshaling working too.
func (p *PipelineConfig) UnmarshalJSON(data []byte) error {
	type Alias PipelineConfig
	aux := &struct {
		BucketWidth any `json:"bucket_width"`
		UnitTimeout any `json:"unit_timeout"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	width, err := flexDuration(aux.BucketWidth)
	if err != nil {
		return fmt.Errorf("bucket_width: %w", err)
	}
	p.BucketWidth = width

	timeout, err := flexDuration(aux.UnitTimeout)
	if err != nil {
		return fmt.Errorf("unit_timeout: %w", err)
	}
	p.UnitTimeout = timeout

	return nil
}

// flexDuration converts a JSON duration value to a time.Duration.
// Strings go through parseDurationWithDays, numbers are nanoseconds.
func flexDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case string:
		return parseDurationWithDays(d)
	case float64:
		return time.Duration(d), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", v)
	}
}

// AnchorMillis resolves the configured epoch anchor to Unix milliseconds.
// A nil anchor is the Unix epoch.
func (p *PipelineConfig) AnchorMillis() (int64, error) {
	if p.EpochAnchor == nil {
		return 0, nil
	}
	ms, err := timestamp.Parse(p.EpochAnchor)
	if err != nil {
		return 0, err
	}
	if err := timestamp.Validate(ms); err != nil {
		return 0, err
	}
	return ms, nil
}

// Validate checks the configuration before any record is read. All
// failures carry ErrInvalidConfig and are fatal to the run.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return invalidf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Input.Validate(); err != nil {
		return err
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	if err := c.NATS.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Evaluator.Validate()
}

// Validate checks the pipeline section. Unit list semantics beyond
// well-formed names (duplicates, unknown names, dependency order) belong
// to the registries and are enforced at resolve time, still before the
// first record is read.
func (p *PipelineConfig) Validate() error {
	if p.BucketWidth < time.Millisecond {
		return invalidf("pipeline.bucket_width must be at least 1ms, got %s", p.BucketWidth)
	}
	if p.TimestampFieldPath == "" {
		return invalidf("pipeline.timestamp_field_path is required")
	}
	if p.MaxBuckets < 1 {
		return invalidf("pipeline.max_buckets must be positive, got %d", p.MaxBuckets)
	}
	if p.EnrichWorkers < 1 {
		return invalidf("pipeline.enrich_workers must be at least 1, got %d", p.EnrichWorkers)
	}
	if p.UnitTimeout < 0 {
		return invalidf("pipeline.unit_timeout cannot be negative")
	}

	if _, err := p.AnchorMillis(); err != nil {
		return invalidf("pipeline.epoch_anchor: %v", err)
	}

	for i, unit := range p.EnrichmentUnits {
		if unit.Name == "" {
			return invalidf("pipeline.enrichment_unit_list[%d]: name is required", i)
		}
	}
	for i, unit := range p.MeasurementUnits {
		if unit.Name == "" {
			return invalidf("pipeline.measurement_unit_list[%d]: name is required", i)
		}
	}

	return nil
}

// Validate checks the input section.
func (i *InputConfig) Validate() error {
	switch i.Source {
	case SourceStdin:
	case SourceFile:
		if i.Path == "" {
			return invalidf("input.path is required when input.source is %q", SourceFile)
		}
	case SourceWebSocket:
		if i.URL == "" {
			return invalidf("input.url is required when input.source is %q", SourceWebSocket)
		}
		u, err := url.Parse(i.URL)
		if err != nil {
			return invalidf("input.url: %v", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return invalidf("input.url scheme must be ws or wss, got %q", u.Scheme)
		}
	default:
		return invalidf("input.source %q is not one of %s, %s, %s",
			i.Source, SourceStdin, SourceFile, SourceWebSocket)
	}

	if i.RateLimit < 0 {
		return invalidf("input.rate_limit cannot be negative")
	}
	if i.RateBurst < 0 {
		return invalidf("input.rate_burst cannot be negative")
	}

	return nil
}

// Validate checks the output section.
func (o *OutputConfig) Validate() error {
	if o.Enriched.FlushInterval < 0 {
		return invalidf("output.enriched.flush_interval cannot be negative")
	}
	return nil
}

// Validate checks the NATS section. A disabled section is always valid.
func (n *NATSConfig) Validate() error {
	if !n.Enabled {
		return nil
	}
	if len(n.URLs) == 0 {
		return invalidf("nats.urls is required when nats.enabled is true")
	}
	if n.Subject == "" {
		return invalidf("nats.subject is required when nats.enabled is true")
	}
	if !isValidSubject(n.Subject) {
		return invalidf("nats.subject %q is not a valid subject (alphanumeric tokens separated by dots)", n.Subject)
	}
	return nil
}

// isValidSubject reports whether s is a publishable NATS subject: dot
// separated tokens of letters, digits, dashes and underscores. Wildcards
// are rejected, fanout publishes to a concrete subject.
func isValidSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, token := range strings.Split(s, ".") {
		if token == "" {
			return false
		}
		for _, r := range token {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '-' || r == '_':
			default:
				return false
			}
		}
	}
	return true
}

// Validate checks the metrics section.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.ListenAddr == "" {
		return invalidf("metrics.listen_addr is required when metrics.enabled is true")
	}
	return nil
}

// Validate checks the evaluator section. Disjointness of the two rule
// sets is a data property that cannot be decided from the rules alone;
// the evaluator checks it per record during partitioning.
func (e *EvaluatorConfig) Validate() error {
	if !e.Enabled {
		return nil
	}

	u, err := url.Parse(e.URL)
	if err != nil {
		return invalidf("evaluator.url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalidf("evaluator.url scheme must be http or https, got %q", u.Scheme)
	}

	if e.Mode != ModeAbsolute && e.Mode != ModeRelative {
		return invalidf("evaluator.mode %q is not one of %s, %s", e.Mode, ModeAbsolute, ModeRelative)
	}
	if e.Timeout < 0 {
		return invalidf("evaluator.timeout cannot be negative")
	}
	if e.BatchSize < 1 {
		return invalidf("evaluator.batch_size must be positive, got %d", e.BatchSize)
	}

	if len(e.Analyzed) == 0 {
		return invalidf("evaluator.analyzed requires at least one rule")
	}
	if len(e.Baseline) == 0 {
		return invalidf("evaluator.baseline requires at least one rule")
	}
	if err := e.Analyzed.Validate(); err != nil {
		return invalidf("evaluator.analyzed: %v", err)
	}
	if err := e.Baseline.Validate(); err != nil {
		return invalidf("evaluator.baseline: %v", err)
	}

	return nil
}

// invalidf builds a validation failure carrying ErrInvalidConfig.
func invalidf(format string, args ...any) error {
	return trenderrors.WrapInvalid(
		fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), trenderrors.ErrInvalidConfig),
		"Config", "Validate", "check configuration")
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// JSON round trip for the deep copy
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

// String returns an indented JSON rendering with credentials redacted.
// Safe to log and to print from validate-only runs.
func (c *Config) String() string {
	clone := c.Clone()
	if clone.NATS.Password != "" {
		clone.NATS.Password = "***"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(clone, "", "  ")
	return string(data)
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}
