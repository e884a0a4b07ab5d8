// Package metric provides Prometheus-based metrics collection for
// TrendStreams runs, with an optional HTTP server and an end-of-run
// text dump for batch invocations no scraper will ever visit.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: pipeline-level metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component-specific metrics (MetricsRegistrar interface)
//  3. Output: HTTP scrape endpoint (Server) or a one-shot text dump (DumpText)
//
// # Basic Usage
//
// Setting up metrics collection and the HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9102", "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
//	// Record core pipeline metrics
//	core := registry.CoreMetrics()
//	core.RecordRead("stdin")
//	core.RecordRecordOutcome(metric.OutcomeEnriched)
//	core.RecordUnitFailure("topic_label")
//
// # Core Metrics
//
// All core metrics use the "trendstreams" namespace:
//
//   - trendstreams_pipeline_run_state (0=idle, 1=collecting, 2=draining, 3=done, 4=failed)
//   - trendstreams_records_read_total{source}
//   - trendstreams_records_outcome_total{outcome} where outcome is enriched, skipped or dropped
//   - trendstreams_pipeline_stage_duration_seconds{stage}
//   - trendstreams_units_failures_total{unit} and trendstreams_units_skips_total{unit}
//   - trendstreams_buckets_tracked and trendstreams_buckets_counters_tracked
//   - trendstreams_errors_total{component,class}
//   - trendstreams_nats_connected, trendstreams_nats_reconnects_total,
//     trendstreams_nats_published_total{subject,status}
//
// # Component-Specific Metrics
//
// Components register their own collectors through the registry, which
// rejects duplicate names per component:
//
//	depth := prometheus.NewGauge(prometheus.GaugeOpts{
//	    Name: "enrich_pool_queue_depth",
//	    Help: "Items waiting in the enrichment pool",
//	})
//	err := registry.RegisterGauge("enrich-pool", "enrich_pool_queue_depth", depth)
//
// The MetricsRegistrar interface covers counters, gauges and histograms
// plus their vector forms, so components can depend on the interface and
// tests can substitute a recorder.
//
// # Batch Runs
//
// A run that reads a file and exits has nothing for Prometheus to scrape.
// DumpText writes the final state of every collector in Prometheus text
// format, typically to stderr or a file, right before exit:
//
//	if cfg.Metrics.DumpOnExit {
//	    _ = registry.DumpText(os.Stderr)
//	}
//
// # Thread Safety
//
// Registration uses mutex protection; metric recording is lock-free per
// the Prometheus client guarantees. CoreMetrics() returns a shared
// instance safe for concurrent use.
package metric
