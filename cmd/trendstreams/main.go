// Package main implements the entry point for the trendstreams application.
// Trendstreams enriches streams of social-media post records and aggregates
// them into time-bucketed counter tables.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/trendstreams/config"
	"github.com/c360/trendstreams/enrich"
	enrichunits "github.com/c360/trendstreams/enrich/units"
	trenderrors "github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/evaluate"
	ndjsonin "github.com/c360/trendstreams/input/ndjson"
	"github.com/c360/trendstreams/measure"
	measureunits "github.com/c360/trendstreams/measure/units"
	"github.com/c360/trendstreams/metric"
	"github.com/c360/trendstreams/natsclient"
	"github.com/c360/trendstreams/pipeline"
	"github.com/c360/trendstreams/record"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "trendstreams"
)

// Exit codes distinguish misconfiguration from run failures from the
// no-data condition, so wrappers can branch on them.
const (
	exitRunError    = 1
	exitConfigError = 2
	exitNoData      = 3
	exitPanic       = 4
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitPanic)
		}
	}()

	if err := run(); err != nil {
		code := exitCodeFor(err)
		slog.Error("Application failed", "error", err, "exit_code", code)
		os.Exit(code)
	}
}

func exitCodeFor(err error) int {
	switch {
	case stderrors.Is(err, trenderrors.ErrEmptyTable):
		return exitNoData
	case trenderrors.IsInvalid(err):
		return exitConfigError
	default:
		return exitRunError
	}
}

func run() error {
	// Parse and validate CLI flags
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// Load and validate configuration
	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	level := cliCfg.LogLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logger := setupLogger(level, cliCfg.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		fmt.Println(cfg.String())
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting trendstreams",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"input", cfg.Input.Source)

	signalCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	if cliCfg.Evaluate {
		return runEvaluation(signalCtx, cfg, logger)
	}
	return runPipeline(signalCtx, cliCfg, cfg, logger)
}

// initializeCLI parses flags and handles the version and help fast paths
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, trenderrors.WrapInvalid(err, "CLI", "validateFlags", "check flags")
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

// loadConfiguration loads the file or environment configuration and applies
// CLI overrides before validating
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()

	var cfg *config.Config
	var err error
	if cliCfg.ConfigPath != "" {
		cfg, err = loader.LoadFile(cliCfg.ConfigPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyOverrides(cfg, cliCfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyOverrides lets explicit CLI flags win over file and environment values
func applyOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.LogLevel != "" {
		cfg.LogLevel = cliCfg.LogLevel
	}
	if cliCfg.Input != "" {
		cfg.Input.Source = cliCfg.Input
	}
	if cliCfg.InputPath != "" {
		cfg.Input.Source = config.SourceFile
		cfg.Input.Path = cliCfg.InputPath
	}
	if cliCfg.InputURL != "" {
		cfg.Input.Source = config.SourceWebSocket
		cfg.Input.URL = cliCfg.InputURL
	}
	if cliCfg.TablePath != "" {
		cfg.Output.Table.Path = cliCfg.TablePath
	}
	if cliCfg.EnrichedPath != "" {
		cfg.Output.Enriched.Enabled = true
		cfg.Output.Enriched.Path = cliCfg.EnrichedPath
	}
	if cliCfg.EnrichOnly {
		// The enriched stream is the sole product of this mode.
		cfg.Output.Enriched.Enabled = true
	}
	if cliCfg.BucketWidth > 0 {
		cfg.Pipeline.BucketWidth = cliCfg.BucketWidth
	}
	if cliCfg.Workers > 0 {
		cfg.Pipeline.EnrichWorkers = cliCfg.Workers
	}
	if cliCfg.ZeroFill {
		cfg.Pipeline.ZeroFill = true
	}
	if cliCfg.Evaluate {
		cfg.Evaluator.Enabled = true
	}
}

// buildRegistries registers the built-in enrichment and measurement units
func buildRegistries(logger *slog.Logger) (*enrich.Registry, *measure.Registry, error) {
	enrichReg := enrich.NewRegistry(logger)
	if err := enrichunits.Register(enrichReg); err != nil {
		return nil, nil, fmt.Errorf("register enrichment units: %w", err)
	}

	measureReg := measure.NewRegistry(logger)
	if err := measureunits.Register(measureReg); err != nil {
		return nil, nil, fmt.Errorf("register measurement units: %w", err)
	}

	slog.Debug("Built-in units registered",
		"enrichment", enrichReg.Names(),
		"measurement", measureReg.Names())

	return enrichReg, measureReg, nil
}

// connectNATS creates the fanout client and waits for the connection
func connectNATS(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if registry != nil {
		opts = append(opts, natsclient.WithMetrics(registry.CoreMetrics()))
	}

	client, err := natsclient.NewClient(cfg.NATS.URLs, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "urls", cfg.NATS.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return client, nil
}

// runPipeline wires the full run: registries, metrics, fanout, signal
// handling, and the end-of-run summary
func runPipeline(ctx context.Context, cliCfg *CLIConfig, cfg *config.Config, logger *slog.Logger) error {
	enrichReg, measureReg, err := buildRegistries(logger)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
		server := metric.NewServer(cfg.Metrics.ListenAddr, "/metrics", registry)
		go func() {
			if err := server.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := server.Stop(); err != nil {
				slog.Warn("Metrics server stop failed", "error", err)
			}
		}()
		opts = append(opts,
			pipeline.WithMetrics(registry.CoreMetrics()),
			pipeline.WithMetricsRegistry(registry))
	}

	if cfg.NATS.Enabled {
		natsClient, err := connectNATS(ctx, cfg, registry)
		if err != nil {
			return err
		}
		defer func() {
			if err := natsClient.Close(context.Background()); err != nil {
				slog.Warn("NATS close failed", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithPublisher(natsClient))
	}

	if cliCfg.EnrichOnly {
		opts = append(opts, pipeline.WithoutAggregation())
	}

	p, err := pipeline.New(cfg, enrichReg, measureReg, opts...)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	if err := p.Start(context.Background()); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	// A signal cancels collection; the pipeline then drains what it has.
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal, draining")
			if err := p.Stop(cliCfg.ShutdownTimeout); err != nil {
				slog.Error("Drain timed out", "error", err, "timeout", cliCfg.ShutdownTimeout)
			}
		case <-finished:
		}
	}()

	result, err := p.Wait()
	close(finished)

	if result != nil {
		slog.Info("Run summary",
			"run_id", result.RunID,
			"state", result.State,
			"cancelled", result.Cancelled,
			"records_read", result.RecordsRead,
			"enriched", result.Enriched,
			"skipped", result.Skipped,
			"dropped", result.Dropped,
			"buckets", result.Buckets,
			"counters", result.Counters,
			"elapsed", result.Elapsed)

		if cfg.Metrics.Enabled && cfg.Metrics.DumpOnExit {
			if dumpErr := registry.DumpText(os.Stderr); dumpErr != nil {
				slog.Warn("Metrics dump failed", "error", dumpErr)
			}
		}
	}

	if err != nil {
		if stderrors.Is(err, trenderrors.ErrEmptyTable) {
			slog.Warn("No data to aggregate", "error", err)
		}
		return err
	}

	slog.Info("Trendstreams run complete")
	return nil
}

// runEvaluation reads an enriched NDJSON stream and scores it against the
// external evaluator service, printing the category table to stdout
func runEvaluation(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	src, err := ndjsonin.Open(cfg.Input, ndjsonin.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = src.Close() }()

	var records []*record.Record
	undecodable := 0
	for {
		line, err := src.Next(ctx)
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		rec, err := record.FromEnrichedJSON(line)
		if err != nil {
			undecodable++
			continue
		}
		records = append(records, rec)
	}
	if undecodable > 0 {
		slog.Warn("Skipped undecodable documents", "count", undecodable)
	}

	client, err := evaluate.NewClient(cfg.Evaluator, evaluate.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build evaluator client: %w", err)
	}

	slog.Info("Evaluating records", "count", len(records), "mode", client.Mode())

	split := evaluate.SplitConfig{
		Analyzed: cfg.Evaluator.Analyzed,
		Baseline: cfg.Evaluator.Baseline,
	}
	res, err := client.Run(ctx, records, split)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
