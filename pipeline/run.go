package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/trendstreams/config"
	"github.com/c360/trendstreams/errors"
	ndjsonin "github.com/c360/trendstreams/input/ndjson"
	"github.com/c360/trendstreams/input/wsndjson"
	"github.com/c360/trendstreams/metric"
	"github.com/c360/trendstreams/pkg/worker"
	"github.com/c360/trendstreams/record"
)

// execute performs the pass: acquire the source, start outputs, collect
// until EOF or cancellation, then drain.
func (p *Pipeline) execute(ctx context.Context) error {
	p.setState(stateCollecting)

	src, err := p.acquireSource(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			p.logger.Debug("source close failed", "error", cerr)
		}
	}()

	if p.enriched != nil {
		if err := p.enriched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if serr := p.enriched.Stop(DefaultShutdownTimeout); serr != nil {
				p.logger.Warn("enriched output stop failed", "error", serr)
			}
		}()
	}

	p.logger.Info("run started",
		"source", src.Name(),
		"enrichment_units", p.engine.UnitNames(),
		"workers", p.cfg.Pipeline.EnrichWorkers,
		"aggregate", p.aggregator != nil)

	if p.cfg.Pipeline.EnrichWorkers > 1 {
		err = p.collectParallel(ctx, src)
	} else {
		err = p.collectSequential(ctx, src)
	}
	if err != nil {
		return err
	}

	return p.drain(ctx)
}

// acquireSource returns the injected source or builds one from the input
// configuration. Connection-holding sources are started here, so a bad
// endpoint fails the run before any record is read.
func (p *Pipeline) acquireSource(ctx context.Context) (Source, error) {
	if p.source != nil {
		if s, ok := p.source.(startableSource); ok {
			if err := s.Start(ctx); err != nil {
				return nil, err
			}
		}
		return p.source, nil
	}

	if p.cfg.Input.Source == config.SourceWebSocket {
		client, err := wsndjson.New(p.cfg.Input, wsndjson.WithLogger(p.baseLogger))
		if err != nil {
			return nil, err
		}
		if err := client.Start(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}

	return ndjsonin.Open(p.cfg.Input, ndjsonin.WithLogger(p.baseLogger))
}

// collectSequential is the enrich_workers=1 path: one goroutine reads,
// enriches and dispatches in arrival order.
func (p *Pipeline) collectSequential(ctx context.Context, src Source) error {
	for {
		line, err := src.Next(ctx)
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				p.noteCancelled()
				return nil
			}
			return errors.WrapTransient(err, "Pipeline", "collect", "read input")
		}

		p.read.Add(1)
		if p.metrics != nil {
			p.metrics.RecordRead(src.Name())
		}

		rec, err := p.decode(line)
		if err != nil {
			continue
		}
		enriched, err := p.enrichRecord(ctx, rec)
		if err != nil {
			continue
		}
		p.dispatch(ctx, enriched)
	}
}

// collectParallel fans enrichment out across the ordered worker pool. A
// single reader feeds the pool in arrival order and a single consumer
// dispatches the re-sequenced results, so the aggregator still has exactly
// one writer.
func (p *Pipeline) collectParallel(ctx context.Context, src Source) error {
	var poolOpts []worker.Option[*record.Record, *record.Record]
	if p.registry != nil {
		poolOpts = append(poolOpts,
			worker.WithMetricsRegistry[*record.Record, *record.Record](p.registry, "enrich_pool"))
	}
	pool := worker.NewOrderedPool(p.cfg.Pipeline.EnrichWorkers, poolQueueSize, p.enrichRecord, poolOpts...)

	if err := pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Pipeline", "collect", "start worker pool")
	}
	defer func() {
		if err := pool.Stop(DefaultShutdownTimeout); err != nil {
			p.logger.Warn("worker pool stop timed out", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			if err := pool.Close(); err != nil {
				p.logger.Debug("worker pool close failed", "error", err)
			}
		}()
		for {
			line, err := src.Next(gctx)
			if err != nil {
				if stderrors.Is(err, io.EOF) {
					return nil
				}
				if gctx.Err() != nil {
					p.noteCancelled()
					return nil
				}
				return errors.WrapTransient(err, "Pipeline", "collect", "read input")
			}

			p.read.Add(1)
			if p.metrics != nil {
				p.metrics.RecordRead(src.Name())
			}

			rec, err := p.decode(line)
			if err != nil {
				continue
			}
			if err := pool.Submit(gctx, rec); err != nil {
				if gctx.Err() != nil {
					p.noteCancelled()
					return nil
				}
				return errors.Wrap(err, "Pipeline", "collect", "submit record")
			}
		}
	})

	g.Go(func() error {
		for res := range pool.Results() {
			if res.Err != nil {
				// Skips are counted where they happen; nothing to forward.
				continue
			}
			p.dispatch(gctx, res.Value)
		}
		return nil
	})

	return g.Wait()
}

// noteCancelled marks the run as cancelled exactly once.
func (p *Pipeline) noteCancelled() {
	if p.cancelled.CompareAndSwap(false, true) {
		p.logger.Info("collection cancelled, draining partial data")
	}
}

// decode turns one raw line into a record. Undecodable lines are dropped
// with a diagnostic, never fatal to the run.
func (p *Pipeline) decode(line []byte) (*record.Record, error) {
	rec, err := record.FromJSON(line)
	if err != nil {
		p.countOutcome(metric.OutcomeDropped)
		p.logger.Debug("record dropped", "reason", "undecodable document", "error", err)
		return nil, err
	}
	return rec, nil
}

// enrichRecord runs the unit chain over one record with stage timing. The
// returned error is the engine's skip signal; unit failures never surface
// here.
func (p *Pipeline) enrichRecord(ctx context.Context, rec *record.Record) (*record.Record, error) {
	start := time.Now()
	enriched, err := p.engine.Enrich(ctx, rec)
	if p.metrics != nil {
		p.metrics.ObserveStageDuration("enrich", time.Since(start))
	}
	if err != nil {
		p.countOutcome(metric.OutcomeSkipped)
		return nil, err
	}
	return enriched, nil
}

// dispatch forwards one enriched record: enriched output first, optional
// fanout, then aggregation. Sink failures degrade to diagnostics so a broken
// output cannot abort a multi-hour collection; a record the aggregator cannot
// timestamp still reaches the enriched stream.
func (p *Pipeline) dispatch(ctx context.Context, rec *record.Record) {
	if p.enriched != nil {
		if err := p.enriched.Write(rec); err != nil {
			p.writeErrs.Add(1)
			if p.metrics != nil {
				p.metrics.RecordError("enriched_output", errors.Classify(err).String())
			}
			p.logger.Warn("enriched output write failed", "error", err)
		}
	}

	if p.publisher != nil {
		p.publish(ctx, rec)
	}

	if p.aggregator == nil {
		p.countOutcome(metric.OutcomeEnriched)
		return
	}

	start := time.Now()
	err := p.aggregator.Add(rec)
	if p.metrics != nil {
		p.metrics.ObserveStageDuration("aggregate", time.Since(start))
	}
	if err != nil {
		if stderrors.Is(err, errors.ErrUnparseableTimestamp) {
			p.countOutcome(metric.OutcomeDropped)
			p.logger.Debug("record dropped", "reason", "unparseable timestamp")
			return
		}
		if p.metrics != nil {
			p.metrics.RecordError("aggregator", errors.Classify(err).String())
		}
		p.logger.Error("aggregation failed", "error", err)
		return
	}
	p.countOutcome(metric.OutcomeEnriched)
}

// publish sends one enriched record to the fanout subject.
func (p *Pipeline) publish(ctx context.Context, rec *record.Record) {
	line, err := rec.MarshalEnriched()
	if err != nil {
		p.publishErrs.Add(1)
		p.logger.Debug("fanout encode failed", "error", err)
		return
	}
	if err := p.publisher.Publish(ctx, p.subject, line); err != nil {
		p.publishErrs.Add(1)
		p.logger.Debug("fanout publish failed", "subject", p.subject, "error", err)
	}
}

// drain closes the collecting phase: build the table, record its shape,
// write it out, flush the fanout.
func (p *Pipeline) drain(ctx context.Context) error {
	if p.aggregator == nil {
		return p.flushFanout(ctx)
	}
	p.setState(stateDraining)

	table, err := p.aggregator.Drain()
	if err != nil {
		// The empty table condition travels to the caller as recoverable
		// "no data"; everything else is a drain failure.
		return err
	}

	p.tableBuckets = len(table.Rows)
	p.tableCounters = len(table.Counters)
	if p.metrics != nil {
		p.metrics.RecordTableSize(len(table.Rows), len(table.Counters))
	}

	if p.tableOut != nil {
		if err := p.tableOut.Write(table); err != nil {
			return err
		}
		p.tableWritten = true
	}

	return p.flushFanout(ctx)
}

// flushFanout pushes buffered fanout publishes through before the run
// reports done. Runs on a detached context so cancellation does not strand
// records that were already accepted.
func (p *Pipeline) flushFanout(ctx context.Context) error {
	if p.publisher == nil {
		return nil
	}

	flushCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := p.publisher.Flush(flushCtx); err != nil {
		p.publishErrs.Add(1)
		p.logger.Warn("fanout flush failed", "error", err)
	}
	return nil
}
