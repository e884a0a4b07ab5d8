// Package ndjson writes enriched post documents as newline delimited JSON,
// one document per line in processing order, to a file or stdout.
package ndjson

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/trendstreams/config"
	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/record"
)

// DefaultFlushInterval bounds how stale the output file can be while the
// run is in flight.
const DefaultFlushInterval = 1 * time.Second

const writeBufferSize = 64 << 10

// Stats reports writer progress counters.
type Stats struct {
	Records int64
	Bytes   int64
	Errors  int64
}

// Writer serializes enriched Records to an NDJSON sink. Writes are buffered
// and flushed on an interval and at Stop. A Path of "" or "-" writes stdout.
type Writer struct {
	path          string
	flushInterval time.Duration
	logger        *slog.Logger

	file *os.File // nil for stdout
	w    *bufio.Writer
	wMu  sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
	doneOnce     sync.Once
	started      atomic.Bool
	lifecycleMu  sync.Mutex
	wg           sync.WaitGroup

	records atomic.Int64
	bytes   atomic.Int64
	errs    atomic.Int64
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger used for write failures and lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger.With("component", "ndjson_output")
		}
	}
}

// NewWriter builds a Writer from the enriched output section of the run
// configuration. The sink is opened by Start.
func NewWriter(cfg config.EnrichedOutputConfig, opts ...Option) *Writer {
	w := &Writer{
		path:          cfg.Path,
		flushInterval: cfg.FlushInterval,
		logger:        slog.Default().With("component", "ndjson_output"),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	if w.flushInterval <= 0 {
		w.flushInterval = DefaultFlushInterval
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start opens the sink and launches the periodic flush.
func (w *Writer) Start(_ context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.started.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Writer", "Start",
			"check started state")
	}

	if w.path == "" || w.path == "-" {
		w.w = bufio.NewWriterSize(os.Stdout, writeBufferSize)
	} else {
		if dir := filepath.Dir(w.path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.WrapFatal(err, "Writer", "Start",
					fmt.Sprintf("create directory %s", dir))
			}
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return errors.WrapFatal(err, "Writer", "Start",
				fmt.Sprintf("open %s", w.path))
		}
		w.file = f
		w.w = bufio.NewWriterSize(f, writeBufferSize)
	}

	w.wg.Add(1)
	go w.flushLoop()

	w.started.Store(true)
	w.logger.Info("enriched output started", "path", w.sinkName())
	return nil
}

// Write appends one Record as a single NDJSON line.
func (w *Writer) Write(rec *record.Record) error {
	if !w.started.Load() {
		return errors.WrapFatal(errors.ErrNotStarted, "Writer", "Write",
			"writer not started")
	}

	data, err := rec.MarshalEnriched()
	if err != nil {
		w.errs.Add(1)
		return err
	}

	w.wMu.Lock()
	defer w.wMu.Unlock()

	n, err := w.w.Write(data)
	if err == nil {
		var nl int
		nl, err = w.w.Write([]byte{'\n'})
		n += nl
	}
	if err != nil {
		w.errs.Add(1)
		return errors.WrapTransient(err, "Writer", "Write",
			fmt.Sprintf("write %s", w.sinkName()))
	}

	w.records.Add(1)
	w.bytes.Add(int64(n))
	return nil
}

// Stats returns the counters accumulated since Start.
func (w *Writer) Stats() Stats {
	return Stats{
		Records: w.records.Load(),
		Bytes:   w.bytes.Load(),
		Errors:  w.errs.Load(),
	}
}

// Stop flushes buffered output and closes the file. Stdout is flushed but
// left open. Safe to call more than once.
func (w *Writer) Stop(timeout time.Duration) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.started.Load() {
		return nil
	}

	w.shutdownOnce.Do(func() {
		close(w.shutdown)
	})

	waitCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"Writer", "Stop", "wait for flush loop")
	}

	w.wMu.Lock()
	flushErr := w.w.Flush()
	if w.file != nil {
		if err := w.file.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
		w.file = nil
	}
	w.wMu.Unlock()

	w.doneOnce.Do(func() {
		close(w.done)
	})
	w.started.Store(false)

	if flushErr != nil {
		return errors.WrapTransient(flushErr, "Writer", "Stop",
			fmt.Sprintf("flush %s", w.sinkName()))
	}

	w.logger.Info("enriched output stopped",
		"path", w.sinkName(),
		"records", w.records.Load(),
		"bytes", w.bytes.Load())
	return nil
}

// flushLoop flushes the buffer on the configured interval until shutdown.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			w.wMu.Lock()
			if err := w.w.Flush(); err != nil {
				w.errs.Add(1)
				w.logger.Error("periodic flush failed",
					"path", w.sinkName(), "error", err)
			}
			w.wMu.Unlock()
		}
	}
}

func (w *Writer) sinkName() string {
	if w.path == "" || w.path == "-" {
		return "stdout"
	}
	return w.path
}
