// Package pipeline orchestrates the single pass over the record stream:
// source → enrichment engine → measurement units → aggregator, with optional
// enriched NDJSON output and subject fanout along the way and a CSV table at
// the end.
//
// # Run Shape
//
// Records are processed strictly in arrival order. With enrich_workers=1 one
// goroutine reads, enriches and dispatches. With more workers enrichment fans
// out across an ordered pool and results are re-sequenced before dispatch, so
// downstream consumers still see the stream in original order and the
// aggregate table is only ever touched by one goroutine.
//
// The failure contract is "fail record, not run": undecodable lines,
// per-record unit failures, unit skip signals and unparseable timestamps are
// counted and logged but never abort a pass. Configuration problems, unknown
// or misordered units among them, fail construction before the first record
// is read.
//
// # Basic Usage
//
//	enrichReg := enrich.NewRegistry(logger)
//	measureReg := measure.NewRegistry(logger)
//	// register unit catalogs...
//
//	p, err := pipeline.New(cfg, enrichReg, measureReg,
//		pipeline.WithLogger(logger),
//		pipeline.WithMetrics(metrics))
//	if err != nil {
//		return err // configuration error, nothing was read
//	}
//
//	result, err := p.Run(ctx)
//
// Cancelling ctx stops collection and drains the partial table; the result
// reports what was accepted up to that point. Stop does the same with a
// deadline, for signal handlers.
package pipeline
