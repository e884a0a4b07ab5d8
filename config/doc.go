// Package config provides configuration loading and validation for
// TrendStreams runs.
//
// Configuration is file plus environment: JSON or YAML layers are deep
// merged over built-in defaults, then TRENDSTREAMS_* environment variables
// override individual values. The result is an explicit Config struct that
// callers pass into constructors; no component reads configuration from
// process-wide state.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Layer Merging
//
// Layers merge with last-wins semantics, key by key:
//
//	base.yaml:
//	  pipeline: {bucket_width: "1h", zero_fill: true}
//
//	production.json:
//	  {"pipeline": {"bucket_width": "15m"}}
//
//	Result:
//	  pipeline: {bucket_width: "15m", zero_fill: true}
//
// YAML files are normalized through a JSON round trip before merging, so
// both formats behave identically and the Config struct carries only JSON
// tags.
//
// # Duration Strings
//
// Duration fields accept Go duration syntax plus a day suffix:
//
//	pipeline:
//	  bucket_width: "1d"   # daily buckets
//	  unit_timeout: "500ms"
//
// # Environment Variable Overrides
//
//	# Override the input source
//	export TRENDSTREAMS_INPUT_SOURCE="file"
//	export TRENDSTREAMS_INPUT_PATH="posts.ndjson"
//
//	# Override NATS URLs (comma-separated)
//	export TRENDSTREAMS_NATS_URLS="nats://server1:4222,nats://server2:4222"
//
// # Validation
//
// Config.Validate runs before the first record is read. Every failure
// carries errors.ErrInvalidConfig and is fatal to the run; nothing is
// streamed on a configuration that did not validate. Unit list semantics
// (unknown names, duplicates, dependency order) are enforced by the unit
// registries at resolve time, also before streaming starts.
//
// # Security
//
// File loading enforces a 10MB size cap, a nesting depth cap, regular-file
// checks, and extension allow-listing. Credentials are redacted from
// Config.String output.
package config
