// Package trendstreams provides a streaming enrichment and aggregation
// pipeline for social activity records.
//
// # Philosophy: Enrich Once, Count Many Ways
//
// TrendStreams separates the two halves of stream analytics that are
// usually tangled together:
//
// Enrichment (per-record, stateless across records):
//   - Derived values: term lists, text statistics, language hints
//   - External lookups: LLM topic labels with response caching
//   - Mutations: normalized or annotated record bodies
//
// Measurement (per-record, accumulated across records):
//   - Counters keyed by name, incremented per matching record
//   - Filters expressed as declarative rule sets over record fields
//   - Time bucketing by the record's posted timestamp
//
// Enrichment units never see counters; measurement units never modify
// records. New analytics are added by registering units, not by editing
// the pipeline.
//
// # Architecture
//
//	┌──────────────┐    ┌──────────────┐    ┌──────────────┐
//	│    Source    │    │  Enrichment  │    │ Measurement  │
//	│ stdin / file │───►│    units     │───►│    units     │
//	│  websocket   │    │ (ordered)    │    │ (filtered)   │
//	└──────────────┘    └──────┬───────┘    └──────┬───────┘
//	                           │                   │
//	                  enriched stream       time buckets
//	                           │                   │
//	            ┌──────────────┼──────┐            ▼
//	            ▼              ▼      ▼      ┌───────────┐
//	      ┌──────────┐   ┌─────────┐ NATS    │ CSV table │
//	      │  NDJSON  │   │ stdout  │ subject │ (buckets x│
//	      │   file   │   │         │         │  counters)│
//	      └──────────┘   └─────────┘         └───────────┘
//
// Records flow through the enrichment chain in registration order, are
// counted into time buckets by the measurement units, and fan out to
// any combination of enriched-stream sinks. The bucket table is written
// once, after the source is exhausted.
//
// A separate evaluation mode replays an enriched stream against an
// audience evaluation service, splitting records into analyzed and
// baseline groups and reporting usable counts per category.
//
// # Packages
//
// Core pipeline:
//   - pipeline: orchestration, lifecycle, worker fan-out, result reporting
//   - record: activity record decode, metadata, enriched envelope
//   - enrich: enrichment unit framework and registry
//   - enrich/units: built-in enrichment units (body_terms, text_stats, ...)
//   - measure: measurement unit framework and registry
//   - measure/units: built-in measurement units (post_count, rule_count, ...)
//   - bucket: time-bucketed counter table and CSV rendering
//   - predicate: declarative rule sets over record fields
//   - evaluate: audience evaluation client and analyzed/baseline split
//
// Sources and sinks:
//   - input/ndjson: newline-delimited JSON from stdin or file
//   - input/wsndjson: newline-delimited JSON over WebSocket with reconnect
//   - output/ndjson: enriched stream writer (file or stdout)
//   - output/csvfile: bucket table writer
//   - natsclient: NATS connection management for enriched fan-out
//
// Infrastructure:
//   - config: configuration loading, defaults, validation
//   - metric: Prometheus metrics and exposition server
//   - errors: classified error handling (transient, invalid, fatal)
//   - pkg/fieldpath: dotted-path access into decoded JSON
//   - pkg/timestamp: posted-time parsing and bucket truncation
//   - pkg/cache: generic LRU for memoizing per-record work
//   - pkg/worker: bounded worker pool with ordered output
//
// # Usage
//
// Basic pipeline setup:
//
//	cfg, err := config.NewLoader().LoadFile("trendstreams.yaml")
//	if err != nil {
//	    return err
//	}
//
//	enrichReg := enrich.NewRegistry(logger)
//	if err := enrichunits.Register(enrichReg); err != nil {
//	    return err
//	}
//	measureReg := measure.NewRegistry(logger)
//	if err := measureunits.Register(measureReg); err != nil {
//	    return err
//	}
//
//	p, err := pipeline.New(cfg, enrichReg, measureReg,
//	    pipeline.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	result, err := p.Run(ctx)
//
// Custom enrichment unit:
//
//	func RegisterSentiment(r *enrich.Registry) error {
//	    return r.Register(enrich.Descriptor{
//	        Name:        "sentiment",
//	        Description: "Coarse sentiment score from the post body",
//	        Build: func(params json.RawMessage) (*enrich.Unit, error) {
//	            return enrich.NewValueUnit("sentiment", scoreBody), nil
//	        },
//	    })
//	}
//
// Units registered this way are addressable from configuration by name,
// participate in dependency ordering via Requires, and surface their
// parameter schemas through the unit-catalog tool.
//
// # Binaries
//
//	# Aggregate stdin into a CSV trend table
//	cat posts.ndjson | trendstreams --table-output trends.csv
//
//	# Enrich only, stream NDJSON to stdout, fan out to NATS
//	trendstreams --config stream.yaml --enrich-only
//
//	# Evaluate an enriched stream against an audience service
//	trendstreams --config eval.yaml --evaluate --input-path enriched.ndjson
//
//	# Export the unit catalog for documentation or validation
//	unit-catalog -format yaml -out units.yaml
//
// # Design Principles
//
// Separation of concerns:
//   - Decoding is not enrichment; enrichment is not measurement
//   - Transport (stdin, file, WebSocket, NATS) is invisible to units
//   - Aggregation state lives in one place (the bucket table)
//
// Composition over configuration:
//   - Small units composed by declaration order
//   - Filters as data (rule sets), not code
//   - Fan-out sinks added without touching the pipeline
//
// Testability:
//   - Explicit dependencies (no globals)
//   - Units tested in isolation with table-driven cases
//   - End-to-end golden tests over a fixed fixture stream
package trendstreams
