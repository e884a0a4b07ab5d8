package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	Input           string
	InputPath       string
	InputURL        string
	TablePath       string
	EnrichedPath    string
	BucketWidth     time.Duration
	Workers         int
	ZeroFill        bool
	EnrichOnly      bool
	Evaluate        bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("TRENDSTREAMS_CONFIG", ""),
		"Path to configuration file, empty uses defaults plus environment (env: TRENDSTREAMS_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("TRENDSTREAMS_CONFIG", ""),
		"Path to configuration file, empty uses defaults plus environment (env: TRENDSTREAMS_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("TRENDSTREAMS_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; empty defers to config (env: TRENDSTREAMS_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("TRENDSTREAMS_LOG_FORMAT", "json"),
		"Log format: json, text (env: TRENDSTREAMS_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("TRENDSTREAMS_DEBUG", false),
		"Enable debug mode (env: TRENDSTREAMS_DEBUG)")

	flag.StringVar(&cfg.Input, "input", "",
		"Input source override: stdin, file, websocket")

	flag.StringVar(&cfg.InputPath, "input-path", "",
		"NDJSON input file, implies -input=file")

	flag.StringVar(&cfg.InputURL, "input-url", "",
		"WebSocket input endpoint, implies -input=websocket")

	flag.StringVar(&cfg.TablePath, "table-output", "",
		"CSV table destination, empty or - writes stdout")

	flag.StringVar(&cfg.EnrichedPath, "enriched-output", "",
		"Enriched NDJSON destination, enables the enriched stream")

	flag.DurationVar(&cfg.BucketWidth, "bucket-width", 0,
		"Aggregation bucket width override, e.g. 1h, 15m")

	flag.IntVar(&cfg.Workers, "workers", 0,
		"Enrichment worker count override")

	flag.BoolVar(&cfg.ZeroFill, "zero-fill", false,
		"Emit zero rows for empty buckets between the first and last observed")

	flag.BoolVar(&cfg.EnrichOnly, "enrich-only", false,
		"Enrich and forward records without aggregating")

	flag.BoolVar(&cfg.Evaluate, "evaluate", false,
		"Score an enriched NDJSON stream against the external evaluator and exit")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("TRENDSTREAMS_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful drain timeout after SIGINT/SIGTERM (env: TRENDSTREAMS_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	// Custom usage
	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"", "debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	validInputs := []string{"", "stdin", "file", "websocket"}
	if !contains(validInputs, cfg.Input) {
		return fmt.Errorf("invalid input source: %s", cfg.Input)
	}

	if cfg.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", cfg.Workers)
	}

	if cfg.EnrichOnly && cfg.Evaluate {
		return fmt.Errorf("-enrich-only and -evaluate are mutually exclusive")
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Streaming Post Enrichment and Trend Aggregation

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Aggregate an NDJSON file into an hourly CSV table
  %s --input-path=posts.ndjson --table-output=counts.csv

  # Enrich stdin and emit the enriched stream without aggregating
  %s --enrich-only --enriched-output=-

  # Stream from a WebSocket endpoint with four enrichment workers
  %s --input-url=wss://example.com/stream --workers=4

  # Validate configuration only
  %s --config=/etc/trendstreams/config.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
