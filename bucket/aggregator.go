package bucket

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/record"
)

// State tracks the aggregator through its single pass.
type State int

const (
	// StateCollecting accepts records.
	StateCollecting State = iota
	// StateDraining builds the output table, no further records accepted.
	StateDraining
	// StateDone is terminal, the table has been produced or the drain failed.
	StateDone
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// DefaultTimestampPath is where post creation time lives in activity
// stream payloads.
const DefaultTimestampPath = "postedTime"

// DefaultMaxBuckets caps the zero filled bucket range. One record with a
// timestamp far in the future would otherwise blow the emitted range up
// to millions of empty rows.
const DefaultMaxBuckets = 100000

// Aggregator accumulates counter totals per time bucket over a single
// streaming pass and emits them as a rectangular table. It is owned by
// one goroutine: Add and Drain must not be called concurrently. Totals
// are order independent, so callers that enrich in parallel may feed the
// aggregator in any order and still drain identical numbers.
type Aggregator struct {
	bucketer   *Bucketer
	units      []*measure.Unit
	tsPath     string
	zeroFill   bool
	maxBuckets int
	logger     *slog.Logger

	state        State
	totals       map[int64]map[string]float64
	counterOrder []string
	counterSeen  map[string]struct{}
	minKey       int64
	maxKey       int64

	bucketed     int64
	dropped      int64
	unitFailures int64
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithZeroFill controls whether gap buckets between the first and last
// observed bucket are emitted with all-zero counters.
func WithZeroFill(enabled bool) AggregatorOption {
	return func(a *Aggregator) {
		a.zeroFill = enabled
	}
}

// WithMaxBuckets overrides the emitted range cap. Zero disables the cap.
func WithMaxBuckets(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.maxBuckets = n
	}
}

// WithTimestampPath sets where in the document the record timestamp is
// read from.
func WithTimestampPath(path string) AggregatorOption {
	return func(a *Aggregator) {
		if path != "" {
			a.tsPath = path
		}
	}
}

// NewAggregator creates an aggregator in the collecting state.
func NewAggregator(bucketer *Bucketer, units []*measure.Unit, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		bucketer:    bucketer,
		units:       units,
		tsPath:      DefaultTimestampPath,
		maxBuckets:  DefaultMaxBuckets,
		logger:      slog.Default(),
		state:       StateCollecting,
		totals:      make(map[int64]map[string]float64),
		counterSeen: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "aggregator")
	return a
}

// Add buckets one record and applies every measurement unit to it.
//
// A record without a parseable timestamp is dropped and reported back as
// an unparseable timestamp error; the aggregator stays healthy and the
// caller decides whether to log it. A failing unit loses only its own
// observations for this record, every other unit still contributes.
func (a *Aggregator) Add(rec *record.Record) error {
	if a.state != StateCollecting {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Aggregator", "Add",
			fmt.Sprintf("aggregator is %s", a.state))
	}

	ts, err := rec.Timestamp(a.tsPath)
	if err != nil {
		a.dropped++
		a.logger.Debug("record dropped", "reason", "unparseable timestamp", "path", a.tsPath)
		return err
	}

	key := a.bucketer.Key(ts)
	if a.bucketed == 0 || key < a.minKey {
		a.minKey = key
	}
	if a.bucketed == 0 || key > a.maxKey {
		a.maxKey = key
	}
	a.bucketed++

	for _, unit := range a.units {
		obs, err := unit.Observe(rec)
		if err != nil {
			a.unitFailures++
			a.logger.Debug("measurement unit failed", "unit", unit.Name(), "error", err)
			continue
		}
		for _, ob := range obs {
			a.record(key, ob.Counter, ob.Increment)
		}
	}

	return nil
}

// record adds one increment to the (bucket, counter) total and extends
// the counter universe on first sight.
func (a *Aggregator) record(key int64, counter string, increment float64) {
	counters, ok := a.totals[key]
	if !ok {
		counters = make(map[string]float64)
		a.totals[key] = counters
	}
	counters[counter] += increment

	if _, seen := a.counterSeen[counter]; !seen {
		a.counterSeen[counter] = struct{}{}
		a.counterOrder = append(a.counterOrder, counter)
	}
}

// Drain ends the collecting phase and builds the output table. The
// aggregator is done afterwards, a second drain or a late Add fails.
//
// With zero fill enabled every bucket between the first and last one
// that received observations is emitted, gaps carrying zeros for the
// whole counter universe. A range wider than the configured cap fails
// the drain rather than silently truncating the series. With zero fill
// disabled an input that never bucketed a single record surfaces the
// empty table condition so callers can treat "no data" explicitly.
func (a *Aggregator) Drain() (*Table, error) {
	if a.state != StateCollecting {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStopped, "Aggregator", "Drain",
			fmt.Sprintf("aggregator is %s", a.state))
	}
	a.state = StateDraining
	defer func() { a.state = StateDone }()

	if a.bucketed == 0 && !a.zeroFill {
		return nil, errors.WrapInvalid(errors.ErrEmptyTable, "Aggregator", "Drain",
			"no records were bucketed")
	}

	counters := make([]string, len(a.counterOrder))
	copy(counters, a.counterOrder)

	if a.bucketed == 0 {
		// Zero fill with no records at all: there is no observed range
		// to fill, only the header shape.
		a.logger.Info("drain complete", "buckets", 0, "counters", len(counters))
		return &Table{Counters: counters, Rows: []Row{}}, nil
	}

	var keys []int64
	if a.zeroFill {
		width := a.bucketer.Width()
		span := (a.maxKey-a.minKey)/width + 1
		if a.maxBuckets > 0 && span > int64(a.maxBuckets) {
			return nil, errors.WrapInvalid(errors.ErrBucketRangeExceeded, "Aggregator", "Drain",
				fmt.Sprintf("zero fill over %d buckets exceeds cap %d, check for outlier timestamps or raise max_buckets",
					span, a.maxBuckets))
		}
		keys = make([]int64, 0, span)
		for key := a.minKey; key <= a.maxKey; key += width {
			keys = append(keys, key)
		}
	} else {
		keys = make([]int64, 0, len(a.totals))
		for key := range a.totals {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	}

	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		values := make([]float64, len(counters))
		for i, counter := range counters {
			values[i] = a.totals[key][counter]
		}
		rows = append(rows, Row{Start: key, Values: values})
	}

	a.logger.Info("drain complete",
		"buckets", len(rows),
		"counters", len(counters),
		"bucketed", a.bucketed,
		"dropped", a.dropped)

	return &Table{Counters: counters, Rows: rows}, nil
}

// State returns the current lifecycle state.
func (a *Aggregator) State() State { return a.state }

// AggregatorStats is a snapshot of the run's diagnostic counters.
type AggregatorStats struct {
	Bucketed     int64
	Dropped      int64
	UnitFailures int64
	Buckets      int
	Counters     int
}

// Stats returns the diagnostic counters.
func (a *Aggregator) Stats() AggregatorStats {
	return AggregatorStats{
		Bucketed:     a.bucketed,
		Dropped:      a.dropped,
		UnitFailures: a.unitFailures,
		Buckets:      len(a.totals),
		Counters:     len(a.counterOrder),
	}
}
