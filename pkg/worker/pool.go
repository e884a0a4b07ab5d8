// Package worker provides a generic worker pool that preserves submission order
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/trendstreams/metric"
)

// Result carries one processed item back to the consumer. Results arrive
// on the pool's output channel in submission order even though workers
// complete out of order.
type Result[R any] struct {
	Seq   uint64
	Value R
	Err   error
}

// job pairs a work item with the channel its result travels back on.
type job[T, R any] struct {
	seq  uint64
	item T
	done chan Result[R]
}

// OrderedPool fans work items out across a fixed set of workers and
// emits results in the order items were submitted. Reordering uses a
// channel-of-channels: each submission enqueues its private result
// channel, a single emitter drains those channels FIFO.
type OrderedPool[T, R any] struct {
	// Configuration
	workers   int
	queueSize int
	processor func(context.Context, T) (R, error)

	// Runtime state
	workChan chan job[T, R]
	pending  chan chan Result[R]
	results  chan Result[R]
	shutdown chan struct{}
	metrics  *Metrics
	wg       *sync.WaitGroup
	emitWg   sync.WaitGroup

	// Lifecycle management
	lifecycleMu sync.Mutex
	submitMu    sync.Mutex
	started     bool
	stopped     bool
	closed      bool

	// Statistics (atomic)
	seq       uint64
	submitted int64
	processed int64
	failed    int64
	emitted   int64

	// Metrics configuration
	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Metrics holds Prometheus metrics for worker pool monitoring
type Metrics struct {
	queueDepth     prometheus.Gauge
	utilization    prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	emitted        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option represents a configuration option for the worker pool
type Option[T, R any] func(*OrderedPool[T, R])

// WithMetricsRegistry configures the pool to register metrics with the framework's registry
func WithMetricsRegistry[T, R any](registry *metric.MetricsRegistry, prefix string) Option[T, R] {
	return func(p *OrderedPool[T, R]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// NewOrderedPool creates an ordered worker pool with optional configuration
func NewOrderedPool[T, R any](workers, queueSize int, processor func(context.Context, T) (R, error), opts ...Option[T, R]) *OrderedPool[T, R] {
	if workers <= 0 {
		workers = 4 // Default worker count
	}
	if queueSize <= 0 {
		queueSize = 1000 // Default queue size
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	pool := &OrderedPool[T, R]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan job[T, R], queueSize),
		pending:   make(chan chan Result[R], queueSize+workers),
		results:   make(chan Result[R], queueSize),
		shutdown:  make(chan struct{}),
	}

	// Apply options
	for _, opt := range opts {
		opt(pool)
	}

	// Initialize metrics if registry provided
	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		pool.initializeMetrics()
	}

	return pool
}

// initializeMetrics creates and registers metrics with the framework's registry
func (p *OrderedPool[T, R]) initializeMetrics() {
	prefix := p.metricsPrefix

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_queue_depth",
		Help: "Current worker pool queue depth",
	})
	utilization := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_utilization",
		Help: "Worker pool utilization (0-1)",
	})
	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_submitted_total",
		Help: "Total work items submitted",
	})
	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_processed_total",
		Help: "Total work items processed",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_failed_total",
		Help: "Total work items that failed processing",
	})
	emitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_emitted_total",
		Help: "Total results emitted in order",
	})
	processingTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "_processing_duration_seconds",
		Help:    "Time spent processing work items",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"status"})

	serviceName := "worker_pool"
	p.metricsRegistry.RegisterGauge(serviceName, prefix+"_queue_depth", queueDepth)
	p.metricsRegistry.RegisterGauge(serviceName, prefix+"_utilization", utilization)
	p.metricsRegistry.RegisterCounter(serviceName, prefix+"_submitted_total", submitted)
	p.metricsRegistry.RegisterCounter(serviceName, prefix+"_processed_total", processed)
	p.metricsRegistry.RegisterCounter(serviceName, prefix+"_failed_total", failed)
	p.metricsRegistry.RegisterCounter(serviceName, prefix+"_emitted_total", emitted)
	p.metricsRegistry.RegisterHistogramVec(serviceName, prefix+"_processing_duration_seconds", processingTime)

	p.metrics = &Metrics{
		queueDepth:     queueDepth,
		utilization:    utilization,
		submitted:      submitted,
		processed:      processed,
		failed:         failed,
		emitted:        emitted,
		processingTime: processingTime,
	}
}

// Start starts the worker pool
func (p *OrderedPool[T, R]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	p.wg = &sync.WaitGroup{}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.emitWg.Add(1)
	go p.emitter(ctx)

	if p.metrics != nil {
		p.wg.Add(1)
		go p.metricsUpdater(ctx)
	}

	p.started = true
	return nil
}

// Submit queues one work item. It blocks when the pool is saturated,
// giving the caller backpressure instead of dropping records, and
// unblocks on context cancellation or a hard stop. Concurrent callers
// are serialized; the serialization order is the emission order.
func (p *OrderedPool[T, R]) Submit(ctx context.Context, item T) error {
	p.lifecycleMu.Lock()
	if !p.started {
		p.lifecycleMu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.lifecycleMu.Unlock()
		return ErrPoolStopped
	}
	p.lifecycleMu.Unlock()

	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	j := job[T, R]{
		seq:  atomic.AddUint64(&p.seq, 1),
		item: item,
		done: make(chan Result[R], 1),
	}

	select {
	case p.workChan <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shutdown:
		return ErrPoolStopped
	}

	// pending is sized queueSize+workers, so an item the work queue
	// accepted always finds a slot here.
	p.pending <- j.done

	atomic.AddInt64(&p.submitted, 1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(len(p.workChan)))
	}
	return nil
}

// Close ends the input side: no further submissions are accepted,
// queued work drains, and the results channel closes once the last
// in-order result has been emitted.
func (p *OrderedPool[T, R]) Close() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.closed || p.stopped {
		return nil
	}

	p.submitMu.Lock()
	p.closed = true
	close(p.workChan)
	close(p.pending)
	p.submitMu.Unlock()
	return nil
}

// Stop halts the pool. Queued work that has not been picked up yet is
// abandoned; call Close and drain Results first for a graceful finish.
func (p *OrderedPool[T, R]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	close(p.shutdown)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.emitWg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Results returns the ordered output channel. It closes after Close once
// every submitted item's result has been emitted, or on a hard stop.
func (p *OrderedPool[T, R]) Results() <-chan Result[R] {
	return p.results
}

// Stats returns current pool statistics
func (p *OrderedPool[T, R]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Pending:    len(p.pending),
		Submitted:  atomic.LoadInt64(&p.submitted),
		Processed:  atomic.LoadInt64(&p.processed),
		Failed:     atomic.LoadInt64(&p.failed),
		Emitted:    atomic.LoadInt64(&p.emitted),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Pending    int   `json:"pending"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Emitted    int64 `json:"emitted"`
}

// worker processes work items from the queue
func (p *OrderedPool[T, R]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case j, ok := <-p.workChan:
			if !ok {
				return
			}

			start := time.Now()
			value, err := p.processor(ctx, j.item)
			duration := time.Since(start)

			atomic.AddInt64(&p.processed, 1)
			if err != nil {
				atomic.AddInt64(&p.failed, 1)
			}

			if p.metrics != nil {
				p.metrics.processed.Inc()
				status := "success"
				if err != nil {
					p.metrics.failed.Inc()
					status = "error"
				}
				p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
			}

			// Buffered, never blocks; the emitter picks it up in turn
			j.done <- Result[R]{Seq: j.seq, Value: value, Err: err}
		}
	}
}

// emitter releases results strictly in submission order. It watches the
// start context as well: when a run is cancelled mid-stream, workers bail
// out without filling every pending result, and the emitter must not wait
// for results that will never arrive.
func (p *OrderedPool[T, R]) emitter(ctx context.Context) {
	defer p.emitWg.Done()
	defer close(p.results)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case ch, ok := <-p.pending:
			if !ok {
				return
			}

			var res Result[R]
			select {
			case res = <-ch:
			case <-ctx.Done():
				return
			case <-p.shutdown:
				return
			}

			select {
			case p.results <- res:
				atomic.AddInt64(&p.emitted, 1)
				if p.metrics != nil {
					p.metrics.emitted.Inc()
				}
			case <-ctx.Done():
				return
			case <-p.shutdown:
				return
			}
		}
	}
}

// metricsUpdater periodically updates utilization and queue depth metrics
func (p *OrderedPool[T, R]) metricsUpdater(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			if p.metrics != nil {
				queueDepth := float64(len(p.workChan))
				p.metrics.queueDepth.Set(queueDepth)
				p.metrics.utilization.Set(queueDepth / float64(p.queueSize))
			}
		}
	}
}
