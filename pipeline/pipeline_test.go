package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trendstreams/bucket"
	"github.com/c360/trendstreams/config"
	"github.com/c360/trendstreams/enrich"
	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/metric"
	"github.com/c360/trendstreams/record"
)

// fakeSource replays fixed lines. With hang set it blocks after the last
// line instead of returning EOF, for cancellation tests.
type fakeSource struct {
	lines  [][]byte
	idx    int
	hang   chan struct{}
	closed bool
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.idx >= len(s.lines) {
		if s.hang != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.hang:
			}
		}
		return nil, io.EOF
	}
	line := s.lines[s.idx]
	s.idx++
	return line, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// captureRecords collects dispatched records in arrival order.
type captureRecords struct {
	mu      sync.Mutex
	started bool
	stopped bool
	recs    []*record.Record
}

func (c *captureRecords) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *captureRecords) Write(rec *record.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureRecords) Stop(time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *captureRecords) records() []*record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*record.Record, len(c.recs))
	copy(out, c.recs)
	return out
}

// failingWriter rejects every record.
type failingWriter struct{}

func (failingWriter) Start(context.Context) error { return nil }
func (failingWriter) Write(*record.Record) error  { return fmt.Errorf("sink is broken") }
func (failingWriter) Stop(time.Duration) error    { return nil }

// captureTable stores the drained table.
type captureTable struct {
	table  *bucket.Table
	writes int
}

func (c *captureTable) Write(t *bucket.Table) error {
	c.table = t
	c.writes++
	return nil
}

// fakePublisher records fanout traffic.
type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	flushes  int
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, append([]byte(nil), data...))
	return nil
}

func (f *fakePublisher) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

// testRegistries builds registries with small deterministic units:
// note (value, always "ok"), jitter (value, seq-dependent sleep),
// boom (value, always fails), skip_short (mutate, skips short bodies),
// and the post_count measurement.
func testRegistries(t *testing.T) (*enrich.Registry, *measure.Registry) {
	t.Helper()

	er := enrich.NewRegistry(nil)
	require.NoError(t, er.Register(enrich.Descriptor{
		Name: "note",
		Build: func(json.RawMessage) (*enrich.Unit, error) {
			return enrich.NewValueUnit("note", func(context.Context, *record.Record) (any, error) {
				return "ok", nil
			}), nil
		},
	}))
	require.NoError(t, er.Register(enrich.Descriptor{
		Name: "jitter",
		Build: func(json.RawMessage) (*enrich.Unit, error) {
			return enrich.NewValueUnit("jitter", func(_ context.Context, rec *record.Record) (any, error) {
				seq, _ := rec.Doc["seq"].(float64)
				time.Sleep(time.Duration(3-int(seq)%4) * 2 * time.Millisecond)
				return int(seq), nil
			}), nil
		},
	}))
	require.NoError(t, er.Register(enrich.Descriptor{
		Name: "boom",
		Build: func(json.RawMessage) (*enrich.Unit, error) {
			return enrich.NewValueUnit("boom", func(context.Context, *record.Record) (any, error) {
				return nil, fmt.Errorf("unit is broken")
			}), nil
		},
	}))
	require.NoError(t, er.Register(enrich.Descriptor{
		Name: "skip_short",
		Build: func(json.RawMessage) (*enrich.Unit, error) {
			return enrich.NewMutatorUnit("skip_short", func(_ context.Context, rec *record.Record) error {
				body, _ := rec.Doc["body"].(string)
				if len(body) < 3 {
					return enrich.ErrSkip
				}
				return nil
			}), nil
		},
	}))

	mr := measure.NewRegistry(nil)
	require.NoError(t, mr.Register(measure.Descriptor{
		Name: "post_count",
		Build: func(json.RawMessage) (*measure.Unit, error) {
			return measure.NewUnit("post_count", func(*record.Record) ([]measure.Observation, error) {
				return []measure.Observation{{Counter: "posts", Increment: 1}}, nil
			}), nil
		},
	}))

	return er, mr
}

// testConfig is a minimal valid run configuration for an injected source.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.EnrichmentUnits = []enrich.UnitConfig{{Name: "note"}}
	cfg.Pipeline.MeasurementUnits = []measure.UnitConfig{{Name: "post_count"}}
	return cfg
}

func postLine(seq int, ts string) []byte {
	return []byte(fmt.Sprintf(`{"seq":%d,"body":"post number %d","postedTime":"%s"}`, seq, seq, ts))
}

func TestPipeline_RunSequential(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()

	src := &fakeSource{lines: [][]byte{
		postLine(0, "2023-01-01T10:05:00.000Z"),
		postLine(1, "2023-01-01T10:50:00.000Z"),
		postLine(2, "2023-01-01T12:10:00.000Z"),
	}}
	enrichedOut := &captureRecords{}
	tableOut := &captureTable{}
	metrics := metric.NewMetrics()

	p, err := New(cfg, er, mr,
		WithSource(src),
		WithEnrichedWriter(enrichedOut),
		WithTableWriter(tableOut),
		WithMetrics(metrics))
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "done", result.State)
	assert.False(t, result.Cancelled)
	assert.Equal(t, int64(3), result.RecordsRead)
	assert.Equal(t, int64(3), result.Enriched)
	assert.Equal(t, int64(0), result.Skipped)
	assert.Equal(t, int64(0), result.Dropped)
	assert.True(t, result.TableWritten)
	assert.Equal(t, 2, result.Buckets)
	assert.Equal(t, 1, result.Counters)
	assert.NotEmpty(t, result.RunID)

	// Two buckets, no zero fill: 10:00 with two posts, 12:00 with one.
	require.NotNil(t, tableOut.table)
	require.Equal(t, []string{"posts"}, tableOut.table.Counters)
	require.Len(t, tableOut.table.Rows, 2)
	assert.Equal(t, int64(1672567200000), tableOut.table.Rows[0].Start)
	assert.Equal(t, []float64{2}, tableOut.table.Rows[0].Values)
	assert.Equal(t, int64(1672574400000), tableOut.table.Rows[1].Start)
	assert.Equal(t, []float64{1}, tableOut.table.Rows[1].Values)

	// Enriched output saw every record, in order, with unit metadata.
	recs := enrichedOut.records()
	require.Len(t, recs, 3)
	for i, rec := range recs {
		seq, _ := rec.Doc["seq"].(float64)
		assert.Equal(t, float64(i), seq)
		val, ok := rec.Meta("note")
		require.True(t, ok)
		assert.Equal(t, "ok", val)
	}
	assert.True(t, enrichedOut.started)
	assert.True(t, enrichedOut.stopped)
	assert.True(t, src.closed)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RecordOutcome.WithLabelValues(metric.OutcomeEnriched)))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RecordsRead.WithLabelValues("fake")))
}

func TestPipeline_UnknownUnitFailsConstruction(t *testing.T) {
	er, mr := testRegistries(t)

	cfg := testConfig()
	cfg.Pipeline.EnrichmentUnits = []enrich.UnitConfig{{Name: "nonexistent"}}
	_, err := New(cfg, er, mr, WithSource(&fakeSource{}))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownUnit))

	cfg = testConfig()
	cfg.Pipeline.MeasurementUnits = []measure.UnitConfig{{Name: "nonexistent"}}
	_, err = New(cfg, er, mr, WithSource(&fakeSource{}))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownUnit))
}

func TestPipeline_SkipSignalDiscardsRecord(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()
	cfg.Pipeline.EnrichmentUnits = []enrich.UnitConfig{{Name: "skip_short"}, {Name: "note"}}

	src := &fakeSource{lines: [][]byte{
		postLine(0, "2023-01-01T10:05:00.000Z"),
		[]byte(`{"seq":1,"body":"x","postedTime":"2023-01-01T10:10:00.000Z"}`),
		postLine(2, "2023-01-01T10:20:00.000Z"),
	}}
	enrichedOut := &captureRecords{}
	tableOut := &captureTable{}

	p, err := New(cfg, er, mr,
		WithSource(src), WithEnrichedWriter(enrichedOut), WithTableWriter(tableOut))
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.RecordsRead)
	assert.Equal(t, int64(2), result.Enriched)
	assert.Equal(t, int64(1), result.Skipped)
	assert.Equal(t, map[string]int64{"skip_short": 1}, result.UnitSkips)

	// The skipped record reached neither the enriched stream nor the table.
	assert.Len(t, enrichedOut.records(), 2)
	require.Len(t, tableOut.table.Rows, 1)
	assert.Equal(t, []float64{2}, tableOut.table.Rows[0].Values)
}

func TestPipeline_UnparseableTimestampDropped(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()

	src := &fakeSource{lines: [][]byte{
		postLine(0, "2023-01-01T10:05:00.000Z"),
		[]byte(`{"seq":1,"body":"no timestamp at all"}`),
		[]byte(`{"seq":2,"body":"bad timestamp","postedTime":"not-a-time"}`),
	}}
	enrichedOut := &captureRecords{}
	tableOut := &captureTable{}

	p, err := New(cfg, er, mr,
		WithSource(src), WithEnrichedWriter(enrichedOut), WithTableWriter(tableOut))
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Enriched)
	assert.Equal(t, int64(2), result.Dropped)

	// Dropped records still carry their enrichments into the NDJSON stream;
	// only the aggregate misses them.
	assert.Len(t, enrichedOut.records(), 3)
	require.Len(t, tableOut.table.Rows, 1)
	assert.Equal(t, []float64{1}, tableOut.table.Rows[0].Values)
}

func TestPipeline_UndecodableLineDropped(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()

	src := &fakeSource{lines: [][]byte{
		postLine(0, "2023-01-01T10:05:00.000Z"),
		[]byte(`{not json at all`),
		postLine(2, "2023-01-01T10:06:00.000Z"),
	}}
	tableOut := &captureTable{}

	p, err := New(cfg, er, mr, WithSource(src), WithTableWriter(tableOut))
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.RecordsRead)
	assert.Equal(t, int64(2), result.Enriched)
	assert.Equal(t, int64(1), result.Dropped)
	assert.Equal(t, []float64{2}, tableOut.table.Rows[0].Values)
}

func TestPipeline_UnitFailureIsolation(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()
	cfg.Pipeline.EnrichmentUnits = []enrich.UnitConfig{{Name: "boom"}, {Name: "note"}}

	src := &fakeSource{lines: [][]byte{
		postLine(0, "2023-01-01T10:05:00.000Z"),
		postLine(1, "2023-01-01T10:06:00.000Z"),
	}}
	enrichedOut := &captureRecords{}
	tableOut := &captureTable{}

	p, err := New(cfg, er, mr,
		WithSource(src), WithEnrichedWriter(enrichedOut), WithTableWriter(tableOut))
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// The failing unit loses only its own value: records still flow, other
	// units still run, counts are unchanged.
	assert.Equal(t, int64(2), result.Enriched)
	assert.Equal(t, map[string]int64{"boom": 2}, result.UnitFailures)
	assert.Equal(t, []float64{2}, tableOut.table.Rows[0].Values)

	for _, rec := range enrichedOut.records() {
		val, ok := rec.Meta("boom")
		require.True(t, ok)
		assert.Nil(t, val)
		note, _ := rec.Meta("note")
		assert.Equal(t, "ok", note)
	}
}

func TestPipeline_ParallelPreservesArrivalOrder(t *testing.T) {
	const n = 60

	makeLines := func() [][]byte {
		lines := make([][]byte, 0, n)
		for i := 0; i < n; i++ {
			minute := i % 50
			lines = append(lines, postLine(i, fmt.Sprintf("2023-01-01T10:%02d:00.000Z", minute)))
		}
		return lines
	}

	run := func(workers int) (*Result, []*record.Record, *bucket.Table) {
		er, mr := testRegistries(t)
		cfg := testConfig()
		cfg.Pipeline.EnrichmentUnits = []enrich.UnitConfig{{Name: "jitter"}}
		cfg.Pipeline.EnrichWorkers = workers

		src := &fakeSource{lines: makeLines()}
		enrichedOut := &captureRecords{}
		tableOut := &captureTable{}

		p, err := New(cfg, er, mr,
			WithSource(src), WithEnrichedWriter(enrichedOut), WithTableWriter(tableOut))
		require.NoError(t, err)

		result, err := p.Run(context.Background())
		require.NoError(t, err)
		return result, enrichedOut.records(), tableOut.table
	}

	seqResult, _, seqTable := run(1)
	parResult, parRecs, parTable := run(4)

	// Jittered workers finish out of order; the ordered pool re-sequences.
	require.Len(t, parRecs, n)
	for i, rec := range parRecs {
		seq, _ := rec.Doc["seq"].(float64)
		require.Equal(t, float64(i), seq, "record %d out of order", i)
		val, ok := rec.Meta("jitter")
		require.True(t, ok)
		assert.Equal(t, i, val)
	}

	assert.Equal(t, seqResult.Enriched, parResult.Enriched)
	assert.Equal(t, int64(n), parResult.Enriched)

	// Aggregation totals are identical whichever path produced them.
	if diff := cmp.Diff(seqTable, parTable); diff != "" {
		t.Fatalf("parallel table differs from sequential (-seq +par):\n%s", diff)
	}
}

func TestPipeline_EmptyTable(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()
	cfg.Pipeline.ZeroFill = false

	tableOut := &captureTable{}
	p, err := New(cfg, er, mr, WithSource(&fakeSource{}), WithTableWriter(tableOut))
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrEmptyTable))

	// No data is a recoverable condition, not a failed run.
	require.NotNil(t, result)
	assert.Equal(t, "done", result.State)
	assert.False(t, result.TableWritten)
	assert.Equal(t, 0, tableOut.writes)
}

func TestPipeline_EnrichOnlyMode(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()

	src := &fakeSource{lines: [][]byte{
		postLine(0, "2023-01-01T10:05:00.000Z"),
		[]byte(`{"seq":1,"body":"no timestamp needed here"}`),
	}}
	enrichedOut := &captureRecords{}

	p, err := New(cfg, er, mr,
		WithSource(src), WithEnrichedWriter(enrichedOut), WithoutAggregation())
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// Without the aggregation stage there is no timestamp requirement and
	// no table, records are enriched and forwarded as-is.
	assert.Equal(t, int64(2), result.Enriched)
	assert.Equal(t, int64(0), result.Dropped)
	assert.Equal(t, 0, result.Buckets)
	assert.False(t, result.TableWritten)
	assert.Len(t, enrichedOut.records(), 2)
}

func TestPipeline_FanoutPublishesEnrichedRecords(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()

	src := &fakeSource{lines: [][]byte{
		postLine(0, "2023-01-01T10:05:00.000Z"),
		postLine(1, "2023-01-01T10:06:00.000Z"),
	}}
	pub := &fakePublisher{}
	p, err := New(cfg, er, mr,
		WithSource(src), WithTableWriter(&captureTable{}), WithPublisher(pub))
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, pub.payloads, 2)
	assert.Equal(t, []string{"trendstreams.enriched", "trendstreams.enriched"}, pub.subjects)
	assert.Equal(t, 1, pub.flushes)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &doc))
	assert.Equal(t, float64(0), doc["seq"])
	meta, ok := doc["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", meta["note"])
}

func TestPipeline_BrokenSinkDoesNotAbortRun(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()

	src := &fakeSource{lines: [][]byte{
		postLine(0, "2023-01-01T10:05:00.000Z"),
		postLine(1, "2023-01-01T10:06:00.000Z"),
	}}
	tableOut := &captureTable{}
	p, err := New(cfg, er, mr,
		WithSource(src), WithEnrichedWriter(failingWriter{}), WithTableWriter(tableOut))
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.WriteErrors)
	assert.Equal(t, int64(2), result.Enriched)
	assert.Equal(t, []float64{2}, tableOut.table.Rows[0].Values)
}

func TestPipeline_CancellationDrainsPartialTable(t *testing.T) {
	er, mr := testRegistries(t)
	cfg := testConfig()

	src := &fakeSource{
		lines: [][]byte{
			postLine(0, "2023-01-01T10:05:00.000Z"),
			postLine(1, "2023-01-01T10:06:00.000Z"),
		},
		hang: make(chan struct{}),
	}
	tableOut := &captureTable{}
	p, err := New(cfg, er, mr, WithSource(src), WithTableWriter(tableOut))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		return p.Health().RecordsRead == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(2*time.Second))

	result, err := p.Wait()
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, "done", result.State)
	assert.True(t, result.TableWritten)
	require.Len(t, tableOut.table.Rows, 1)
	assert.Equal(t, []float64{2}, tableOut.table.Rows[0].Values)
	assert.Equal(t, "done", p.Health().State)
}

func TestPipeline_Lifecycle(t *testing.T) {
	er, mr := testRegistries(t)

	t.Run("run twice", func(t *testing.T) {
		p, err := New(testConfig(), er, mr,
			WithSource(&fakeSource{lines: [][]byte{postLine(0, "2023-01-01T10:05:00.000Z")}}),
			WithTableWriter(&captureTable{}))
		require.NoError(t, err)

		_, err = p.Run(context.Background())
		require.NoError(t, err)

		err = p.Start(context.Background())
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrAlreadyStarted))
	})

	t.Run("stop before start", func(t *testing.T) {
		p, err := New(testConfig(), er, mr, WithSource(&fakeSource{}))
		require.NoError(t, err)

		err = p.Stop(time.Second)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrNotStarted))

		_, err = p.Wait()
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrNotStarted))
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := New(nil, er, mr)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrMissingConfig))
	})
}
