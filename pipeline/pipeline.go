package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/trendstreams/bucket"
	"github.com/c360/trendstreams/config"
	"github.com/c360/trendstreams/enrich"
	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/metric"
	"github.com/c360/trendstreams/output/csvfile"
	ndjsonout "github.com/c360/trendstreams/output/ndjson"
	"github.com/c360/trendstreams/record"
)

// DefaultShutdownTimeout bounds output flushes and worker pool teardown at
// the end of a run.
const DefaultShutdownTimeout = 10 * time.Second

// poolQueueSize is the submission queue depth for parallel enrichment.
const poolQueueSize = 256

// Run states reported on the run_state gauge.
const (
	stateIdle int32 = iota
	stateCollecting
	stateDraining
	stateDone
	stateFailed
)

// stateName renders a run state for logs and results.
func stateName(s int32) string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCollecting:
		return "collecting"
	case stateDraining:
		return "draining"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Source yields raw NDJSON lines one at a time. Next returns io.EOF when the
// stream is exhausted; the pipeline then drains. Both input backends satisfy
// this shape.
type Source interface {
	Name() string
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// startableSource is implemented by sources that hold a connection open, the
// websocket client for one. The pipeline starts them before the first Next.
type startableSource interface {
	Start(ctx context.Context) error
}

// RecordWriter receives every record that survives enrichment, in arrival
// order.
type RecordWriter interface {
	Start(ctx context.Context) error
	Write(rec *record.Record) error
	Stop(timeout time.Duration) error
}

// TableWriter receives the drained aggregate table once per run.
type TableWriter interface {
	Write(table *bucket.Table) error
}

// Publisher fans enriched records out to a messaging subject. Failures are
// diagnostics, never record-fatal.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Flush(ctx context.Context) error
}

// Pipeline owns one single-pass run: read records, enrich them in arrival
// order, feed the survivors to the measurement units and the aggregator, and
// drain the aggregate table when the stream ends. The aggregator is mutated by
// exactly one goroutine throughout.
//
// A Pipeline runs once. Construct a new one per run.
type Pipeline struct {
	cfg        *config.Config
	engine     *enrich.Engine
	aggregator *bucket.Aggregator
	source     Source
	enriched   RecordWriter
	tableOut   TableWriter
	publisher  Publisher
	subject    string
	metrics    *metric.Metrics
	registry   *metric.MetricsRegistry
	logger     *slog.Logger
	baseLogger *slog.Logger
	aggregate  bool
	runID      string

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	done        chan struct{}
	result      *Result
	runErr      error

	state       atomic.Int32
	cancelled   atomic.Bool
	read        atomic.Int64
	enrichedN   atomic.Int64
	skipped     atomic.Int64
	dropped     atomic.Int64
	writeErrs   atomic.Int64
	publishErrs atomic.Int64

	tableBuckets  int
	tableCounters int
	tableWritten  bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSource injects the record source, overriding the one the input
// configuration would build. The pipeline owns its lifecycle: pass it
// unstarted.
func WithSource(src Source) Option {
	return func(p *Pipeline) {
		p.source = src
	}
}

// WithEnrichedWriter overrides the enriched NDJSON output built from the
// output configuration.
func WithEnrichedWriter(w RecordWriter) Option {
	return func(p *Pipeline) {
		p.enriched = w
	}
}

// WithTableWriter overrides the CSV table output built from the output
// configuration.
func WithTableWriter(w TableWriter) Option {
	return func(p *Pipeline) {
		p.tableOut = w
	}
}

// WithPublisher enables enriched-record fanout through an already connected
// publisher. The subject comes from the NATS configuration section.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

// WithMetrics wires the shared pipeline metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithMetricsRegistry lets the enrichment worker pool register its own
// queue and utilization metrics.
func WithMetricsRegistry(r *metric.MetricsRegistry) Option {
	return func(p *Pipeline) {
		p.registry = r
	}
}

// WithoutAggregation drops the measurement and aggregation stage: records are
// enriched and forwarded, no table is produced. Used by enrich-only runs.
func WithoutAggregation() Option {
	return func(p *Pipeline) {
		p.aggregate = false
	}
}

// New builds a pipeline from a validated configuration and the two unit
// registries. All unit list resolution happens here: an unknown unit, a
// duplicate, or a dependency out of order fails construction, before any
// record is read.
func New(cfg *config.Config, enrichReg *enrich.Registry, measureReg *measure.Registry, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "nil configuration")
	}

	p := &Pipeline{
		cfg:       cfg,
		subject:   cfg.NATS.Subject,
		logger:    slog.Default(),
		aggregate: true,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	// Sub-components tag their own logs; they get the untagged logger.
	p.baseLogger = p.logger
	p.logger = p.baseLogger.With("component", "pipeline")

	if enrichReg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "nil enrichment registry")
	}
	units, err := enrichReg.Resolve(cfg.Pipeline.EnrichmentUnits)
	if err != nil {
		return nil, err
	}
	p.engine = enrich.NewEngine(units,
		enrich.WithLogger(p.baseLogger),
		enrich.WithUnitTimeout(cfg.Pipeline.UnitTimeout))

	if p.aggregate {
		if measureReg == nil {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "nil measurement registry")
		}
		mUnits, err := measureReg.Resolve(cfg.Pipeline.MeasurementUnits)
		if err != nil {
			return nil, err
		}

		anchor, err := cfg.Pipeline.AnchorMillis()
		if err != nil {
			return nil, errors.WrapInvalid(err, "Pipeline", "New", "resolve epoch anchor")
		}
		bucketer, err := bucket.NewBucketer(cfg.Pipeline.BucketWidth, bucket.WithAnchor(anchor))
		if err != nil {
			return nil, err
		}
		p.aggregator = bucket.NewAggregator(bucketer, mUnits,
			bucket.WithLogger(p.baseLogger),
			bucket.WithZeroFill(cfg.Pipeline.ZeroFill),
			bucket.WithMaxBuckets(cfg.Pipeline.MaxBuckets),
			bucket.WithTimestampPath(cfg.Pipeline.TimestampFieldPath))

		if p.tableOut == nil {
			p.tableOut = csvfile.New(cfg.Output.Table.Path,
				csvfile.WithLogger(p.baseLogger),
				csvfile.WithLabelLayout(cfg.Pipeline.BucketLabelLayout))
		}
	}

	if p.enriched == nil && cfg.Output.Enriched.Enabled {
		p.enriched = ndjsonout.NewWriter(cfg.Output.Enriched, ndjsonout.WithLogger(p.baseLogger))
	}

	return p, nil
}

// Start launches the run in the background. Use Wait for the result, or Run
// for the blocking convenience form.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Start", "run already started")
	}
	p.started = true
	p.runID = uuid.NewString()
	p.logger = p.logger.With("run_id", p.runID)
	p.baseLogger = p.baseLogger.With("run_id", p.runID)

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.run(runCtx)
	return nil
}

// Wait blocks until a started run finishes and returns its result. The
// result is always populated, even for failed runs; the error carries the
// failure, including the recoverable empty table condition.
func (p *Pipeline) Wait() (*Result, error) {
	p.lifecycleMu.Lock()
	started := p.started
	p.lifecycleMu.Unlock()
	if !started {
		return nil, errors.WrapInvalid(errors.ErrNotStarted, "Pipeline", "Wait", "run not started")
	}

	<-p.done
	return p.result, p.runErr
}

// Run executes the full pass and blocks until it finishes.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return p.Wait()
}

// Stop cancels an in-flight run. Collection halts, already accepted records
// stay in, and the run drains its partial table before finishing.
func (p *Pipeline) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started {
		p.lifecycleMu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Pipeline", "Stop", "run not started")
	}
	cancel := p.cancel
	p.lifecycleMu.Unlock()

	cancel()

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrTimeout, "Pipeline", "Stop",
			fmt.Sprintf("run did not finish within %s", timeout))
	}
}

// RunID returns the identifier assigned at Start, empty before that.
func (p *Pipeline) RunID() string {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	return p.runID
}

// Health is a point-in-time snapshot of a run.
type Health struct {
	State       string `json:"state"`
	RecordsRead int64  `json:"records_read"`
	Enriched    int64  `json:"enriched"`
	Skipped     int64  `json:"skipped"`
	Dropped     int64  `json:"dropped"`
}

// Health reports the current run state and record counts. Safe to call from
// any goroutine while the run is in flight.
func (p *Pipeline) Health() Health {
	return Health{
		State:       stateName(p.state.Load()),
		RecordsRead: p.read.Load(),
		Enriched:    p.enrichedN.Load(),
		Skipped:     p.skipped.Load(),
		Dropped:     p.dropped.Load(),
	}
}

// Result summarizes one finished run.
type Result struct {
	RunID         string           `json:"run_id"`
	State         string           `json:"state"`
	Cancelled     bool             `json:"cancelled,omitempty"`
	RecordsRead   int64            `json:"records_read"`
	Enriched      int64            `json:"enriched"`
	Skipped       int64            `json:"skipped"`
	Dropped       int64            `json:"dropped"`
	WriteErrors   int64            `json:"write_errors,omitempty"`
	PublishErrors int64            `json:"publish_errors,omitempty"`
	UnitFailures  map[string]int64 `json:"unit_failures,omitempty"`
	UnitSkips     map[string]int64 `json:"unit_skips,omitempty"`
	Buckets       int              `json:"buckets"`
	Counters      int              `json:"counters"`
	TableWritten  bool             `json:"table_written"`
	Elapsed       time.Duration    `json:"elapsed"`
}

// run drives the pass and publishes the result. It owns every field the
// result is built from; Wait readers synchronize on the done channel.
func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	start := time.Now()

	err := p.execute(ctx)
	elapsed := time.Since(start)

	if err == nil || stderrors.Is(err, errors.ErrEmptyTable) {
		p.setState(stateDone)
	} else {
		p.setState(stateFailed)
		p.logger.Error("run failed", "error", err)
	}

	result := p.finalize(elapsed)
	p.logger.Info("run finished",
		"state", result.State,
		"records_read", result.RecordsRead,
		"enriched", result.Enriched,
		"skipped", result.Skipped,
		"dropped", result.Dropped,
		"buckets", result.Buckets,
		"elapsed", elapsed)

	p.result = result
	p.runErr = err
}

// setState moves the run state and mirrors it onto the gauge.
func (p *Pipeline) setState(s int32) {
	p.state.Store(s)
	if p.metrics != nil {
		p.metrics.RecordRunState(int(s))
	}
}

// finalize builds the run result and folds the engine's per-unit counters
// into the metrics.
func (p *Pipeline) finalize(elapsed time.Duration) *Result {
	stats := p.engine.Stats()
	if p.metrics != nil {
		for unit, n := range stats.UnitFailures {
			p.metrics.UnitFailures.WithLabelValues(unit).Add(float64(n))
		}
		for unit, n := range stats.UnitSkips {
			p.metrics.UnitSkips.WithLabelValues(unit).Add(float64(n))
		}
	}

	return &Result{
		RunID:         p.runID,
		State:         stateName(p.state.Load()),
		Cancelled:     p.cancelled.Load(),
		RecordsRead:   p.read.Load(),
		Enriched:      p.enrichedN.Load(),
		Skipped:       p.skipped.Load(),
		Dropped:       p.dropped.Load(),
		WriteErrors:   p.writeErrs.Load(),
		PublishErrors: p.publishErrs.Load(),
		UnitFailures:  stats.UnitFailures,
		UnitSkips:     stats.UnitSkips,
		Buckets:       p.tableBuckets,
		Counters:      p.tableCounters,
		TableWritten:  p.tableWritten,
		Elapsed:       elapsed,
	}
}

// countOutcome tallies one record's final outcome.
func (p *Pipeline) countOutcome(outcome string) {
	switch outcome {
	case metric.OutcomeEnriched:
		p.enrichedN.Add(1)
	case metric.OutcomeSkipped:
		p.skipped.Add(1)
	case metric.OutcomeDropped:
		p.dropped.Add(1)
	}
	if p.metrics != nil {
		p.metrics.RecordRecordOutcome(outcome)
	}
}
