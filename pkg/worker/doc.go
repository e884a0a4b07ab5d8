// Package worker provides a generic, thread-safe worker pool that preserves
// submission order.
//
// # Overview
//
// The worker package implements an order-preserving fan-out pattern:
//   - Generic input and output types, no type assertions
//   - A fixed worker count processing items concurrently
//   - Results emitted strictly in submission order
//   - Bounded queues giving callers blocking backpressure
//   - Context-aware cancellation and graceful shutdown
//   - Dual-tracking observability (always-on statistics + optional Prometheus metrics)
//
// # Ordering
//
// Each submission allocates a one-slot result channel and enqueues it on an
// internal FIFO. Workers complete items in whatever order they finish, but a
// single emitter goroutine drains the FIFO front to back, so the Results
// channel observes submission order. The cost is one small channel per item;
// the benefit is that a stream fanned out for expensive per-item work comes
// back out in its original order without any sorting or sequence bookkeeping
// in the caller.
//
// Throughput is bounded by the slowest in-flight item at the FIFO front.
// Items behind it still process in parallel, only emission waits.
//
// # Usage
//
//	pool := worker.NewOrderedPool[Line, Line](
//	    8,    // workers
//	    256,  // queue size
//	    func(ctx context.Context, in Line) (Line, error) {
//	        return transform(ctx, in)
//	    },
//	)
//
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
//	go func() {
//	    for _, line := range lines {
//	        if err := pool.Submit(ctx, line); err != nil {
//	            break
//	        }
//	    }
//	    pool.Close()
//	}()
//
//	for res := range pool.Results() {
//	    if res.Err != nil {
//	        continue
//	    }
//	    handle(res.Value)
//	}
//
// Close ends the input side and lets queued work drain; the Results channel
// closes after the final in-order result. Stop is the hard variant: queued
// work not yet picked up is abandoned. A graceful finish is Close, drain
// Results, then Stop to reap the goroutines.
//
// # Backpressure
//
// Submit blocks when the pool is saturated instead of dropping work. A
// record stream is lossless by contract, so overload turns into reduced
// intake rate rather than silent data loss. Submit unblocks on context
// cancellation or a hard stop.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Concurrent Submit calls
// are serialized internally; their serialization order defines the emission
// order. Statistics use atomic operations, lifecycle transitions are mutex
// protected, and Start can only succeed once.
//
// # Limitations
//
//  1. No per-item timeout: enforce deadlines inside the processor function
//  2. No priority handling: strict FIFO
//  3. Worker count is fixed at construction
//
// # Integration with Framework
//
// With a metrics registry attached the pool exposes queue depth,
// utilization, submitted/processed/failed/emitted totals and a processing
// duration histogram under the configured prefix:
//
//	registry := metric.NewMetricsRegistry()
//	pool := worker.NewOrderedPool[T, R](
//	    workers, queueSize, processor,
//	    worker.WithMetricsRegistry[T, R](registry, "enrich_pool"),
//	)
//
// Pool errors are standard sentinels, not classified errors: they are
// programming errors or shutdown signals, never data conditions.
package worker
