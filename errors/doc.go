// Package errors provides standardized error handling patterns for TrendStreams components.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// record-stream processing: Transient (temporary, retryable), Invalid (bad
// input, non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification is what lets the pipeline honor its central failure contract:
// fail the record, not the run. A unit that throws on one record, or a record
// with a timestamp that cannot be parsed, produces an Invalid or Transient
// error that is recovered locally and counted as a diagnostic; only Fatal
// errors (bad configuration discovered before the stream starts, exhausted
// resources) abort processing.
//
// # Error Classification
//
// Errors are classified based on their type or content:
//
//   - Transient: network timeouts, connection issues, single-record unit
//     failures (recover and continue)
//   - Invalid: malformed input, unresolvable unit lists, unparseable
//     timestamps, empty results (do not retry)
//   - Fatal: invalid or missing configuration, unrecoverable states
//     (stop processing)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Engine", "Enrich", "run unit")    // retryable
//	errors.WrapInvalid(err, "Registry", "Resolve", "lookup unit") // validation
//	errors.WrapFatal(err, "Pipeline", "Start", "load config")     // unrecoverable
//
// The generic Wrap() preserves the original error's classification through the
// chain.
//
// # Standard Error Variables
//
// Pre-defined variables cover the recurring conditions, organized by category:
//
//   - Component lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrAlreadyStopped
//   - Unit registries: ErrUnknownUnit, ErrDuplicateUnit, ErrDependencyOrder
//   - Record processing: ErrUnitExecution, ErrUnparseableTimestamp
//   - Aggregation: ErrEmptyTable, ErrBucketRangeExceeded
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//   - Connections: ErrNoConnection, ErrConnectionLost, ErrConnectionTimeout
//
// Use these instead of creating custom error messages so that callers can make
// decisions with errors.Is rather than string matching.
//
// # Context Cancellation
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified
// as Transient, so a unit-level timeout budget degrades to a recoverable
// per-record failure rather than an aborted run.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and safe for concurrent access.
package errors
