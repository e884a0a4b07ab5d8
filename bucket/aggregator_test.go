package bucket

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/measure"
	"github.com/c360/trendstreams/predicate"
	"github.com/c360/trendstreams/record"
)

func postAt(ts string) *record.Record {
	return record.New(map[string]any{
		"postedTime": ts,
		"body":       "some post",
	})
}

func counterUnit(counter string) *measure.Unit {
	return measure.NewUnit(counter, func(*record.Record) ([]measure.Observation, error) {
		return []measure.Observation{{Counter: counter, Increment: 1}}, nil
	})
}

func hourly(t *testing.T) *Bucketer {
	t.Helper()
	b, err := NewBucketer(time.Hour)
	require.NoError(t, err)
	return b
}

func TestAggregatorSingleBucket(t *testing.T) {
	agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")})

	require.NoError(t, agg.Add(postAt("2023-01-15T10:05:00Z")))
	require.NoError(t, agg.Add(postAt("2023-01-15T10:50:00Z")))

	table, err := agg.Drain()
	require.NoError(t, err)

	want := &Table{
		Counters: []string{"count"},
		Rows: []Row{
			{Start: mustMs(t, "2023-01-15T10:00:00Z"), Values: []float64{2}},
		},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregatorZeroFill(t *testing.T) {
	agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")}, WithZeroFill(true))

	require.NoError(t, agg.Add(postAt("2023-01-15T10:05:00Z")))
	require.NoError(t, agg.Add(postAt("2023-01-15T12:50:00Z")))

	table, err := agg.Drain()
	require.NoError(t, err)

	want := &Table{
		Counters: []string{"count"},
		Rows: []Row{
			{Start: mustMs(t, "2023-01-15T10:00:00Z"), Values: []float64{1}},
			{Start: mustMs(t, "2023-01-15T11:00:00Z"), Values: []float64{0}},
			{Start: mustMs(t, "2023-01-15T12:00:00Z"), Values: []float64{1}},
		},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregatorNoZeroFillSkipsGaps(t *testing.T) {
	agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")})

	require.NoError(t, agg.Add(postAt("2023-01-15T10:05:00Z")))
	require.NoError(t, agg.Add(postAt("2023-01-15T12:50:00Z")))

	table, err := agg.Drain()
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, mustMs(t, "2023-01-15T10:00:00Z"), table.Rows[0].Start)
	assert.Equal(t, mustMs(t, "2023-01-15T12:00:00Z"), table.Rows[1].Start)
}

func TestAggregatorConservation(t *testing.T) {
	weights := measure.NewUnit("reach", func(rec *record.Record) ([]measure.Observation, error) {
		w, _ := rec.Doc["weight"].(float64)
		return []measure.Observation{{Counter: "reach", Increment: w}}, nil
	})
	agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count"), weights})

	inputs := []struct {
		ts     string
		weight float64
	}{
		{"2023-01-15T10:05:00Z", 1.5},
		{"2023-01-15T10:50:00Z", 2.0},
		{"2023-01-15T13:10:00Z", 0.25},
		{"2023-01-15T09:59:59Z", 4.0},
	}
	var wantReach float64
	for _, in := range inputs {
		rec := postAt(in.ts)
		rec.Doc["weight"] = in.weight
		require.NoError(t, agg.Add(rec))
		wantReach += in.weight
	}

	table, err := agg.Drain()
	require.NoError(t, err)

	assert.Equal(t, float64(len(inputs)), table.Sum("count"))
	assert.InDelta(t, wantReach, table.Sum("reach"), 1e-9)
}

func TestAggregatorCounterOrderFirstSeen(t *testing.T) {
	byLang := measure.NewUnit("by_lang", func(rec *record.Record) ([]measure.Observation, error) {
		lang, _ := rec.Doc["lang"].(string)
		return []measure.Observation{{Counter: "lang:" + lang, Increment: 1}}, nil
	})
	agg := NewAggregator(hourly(t), []*measure.Unit{byLang})

	for _, lang := range []string{"zh", "en", "es", "en"} {
		rec := postAt("2023-01-15T10:05:00Z")
		rec.Doc["lang"] = lang
		require.NoError(t, agg.Add(rec))
	}

	table, err := agg.Drain()
	require.NoError(t, err)

	// First seen order, not alphabetical
	assert.Equal(t, []string{"lang:zh", "lang:en", "lang:es"}, table.Counters)
}

func TestAggregatorRectangular(t *testing.T) {
	byLang := measure.NewUnit("by_lang", func(rec *record.Record) ([]measure.Observation, error) {
		lang, _ := rec.Doc["lang"].(string)
		return []measure.Observation{{Counter: "lang:" + lang, Increment: 1}}, nil
	})
	agg := NewAggregator(hourly(t), []*measure.Unit{byLang})

	early := postAt("2023-01-15T10:05:00Z")
	early.Doc["lang"] = "en"
	late := postAt("2023-01-15T11:05:00Z")
	late.Doc["lang"] = "es"
	require.NoError(t, agg.Add(early))
	require.NoError(t, agg.Add(late))

	table, err := agg.Drain()
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	// A counter first seen in the second bucket still has a zero in the first
	esCol := table.Column("lang:es")
	require.GreaterOrEqual(t, esCol, 0)
	assert.Equal(t, 0.0, table.Rows[0].Values[esCol])
	assert.Equal(t, 1.0, table.Rows[1].Values[esCol])
}

func TestAggregatorDropsUnparseableTimestamps(t *testing.T) {
	agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")})

	require.NoError(t, agg.Add(postAt("2023-01-15T10:05:00Z")))

	err := agg.Add(record.New(map[string]any{"body": "no timestamp"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnparseableTimestamp)

	err = agg.Add(record.New(map[string]any{"postedTime": "not a time"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnparseableTimestamp)

	require.NoError(t, agg.Add(postAt("2023-01-15T10:55:00Z")))

	table, err := agg.Drain()
	require.NoError(t, err)
	assert.Equal(t, 2.0, table.Sum("count"))

	stats := agg.Stats()
	assert.Equal(t, int64(2), stats.Bucketed)
	assert.Equal(t, int64(2), stats.Dropped)
}

func TestAggregatorUnitFailureIsolation(t *testing.T) {
	failing := measure.NewUnit("flaky", func(*record.Record) ([]measure.Observation, error) {
		return nil, fmt.Errorf("lookup failed")
	})
	agg := NewAggregator(hourly(t), []*measure.Unit{failing, counterUnit("count")})

	require.NoError(t, agg.Add(postAt("2023-01-15T10:05:00Z")))
	require.NoError(t, agg.Add(postAt("2023-01-15T10:50:00Z")))

	table, err := agg.Drain()
	require.NoError(t, err)

	// The failing unit changes nothing for other counters or row count
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 2.0, table.Sum("count"))
	assert.Equal(t, -1, table.Column("flaky"))
	assert.Equal(t, int64(2), agg.Stats().UnitFailures)
}

func TestAggregatorFilterRejectsAll(t *testing.T) {
	never := measure.NewUnit("never", func(*record.Record) ([]measure.Observation, error) {
		return []measure.Observation{{Counter: "never", Increment: 1}}, nil
	}, measure.WithFilter(predicate.Func(func(*record.Record) bool { return false })))

	agg := NewAggregator(hourly(t), []*measure.Unit{never, counterUnit("count")})

	require.NoError(t, agg.Add(postAt("2023-01-15T10:05:00Z")))
	require.NoError(t, agg.Add(postAt("2023-01-15T10:50:00Z")))

	table, err := agg.Drain()
	require.NoError(t, err)

	assert.Equal(t, -1, table.Column("never"))
	assert.Equal(t, 2.0, table.Sum("count"))
	assert.Zero(t, agg.Stats().UnitFailures)
}

func TestAggregatorMaxBucketsCap(t *testing.T) {
	agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")},
		WithZeroFill(true), WithMaxBuckets(10))

	require.NoError(t, agg.Add(postAt("2023-01-15T10:05:00Z")))
	require.NoError(t, agg.Add(postAt("2031-06-01T10:05:00Z")))

	_, err := agg.Drain()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBucketRangeExceeded)
}

func TestAggregatorEmptyInput(t *testing.T) {
	t.Run("no zero fill surfaces empty table", func(t *testing.T) {
		agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")})
		_, err := agg.Drain()
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrEmptyTable)
	})

	t.Run("zero fill yields header only table", func(t *testing.T) {
		agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")}, WithZeroFill(true))
		table, err := agg.Drain()
		require.NoError(t, err)
		assert.True(t, table.Empty())
	})
}

func TestAggregatorLifecycle(t *testing.T) {
	agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")})
	assert.Equal(t, StateCollecting, agg.State())

	require.NoError(t, agg.Add(postAt("2023-01-15T10:05:00Z")))

	_, err := agg.Drain()
	require.NoError(t, err)
	assert.Equal(t, StateDone, agg.State())

	err = agg.Add(postAt("2023-01-15T11:05:00Z"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)

	_, err = agg.Drain()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
}

func TestAggregatorArrivalOrderIndependence(t *testing.T) {
	stamps := []string{
		"2023-01-15T12:50:00Z",
		"2023-01-15T10:05:00Z",
		"2023-01-15T11:30:00Z",
		"2023-01-15T10:59:00Z",
	}

	run := func(order []string) *Table {
		agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")}, WithZeroFill(true))
		for _, ts := range order {
			require.NoError(t, agg.Add(postAt(ts)))
		}
		table, err := agg.Drain()
		require.NoError(t, err)
		return table
	}

	forward := run(stamps)
	reversed := run([]string{stamps[3], stamps[2], stamps[1], stamps[0]})

	if diff := cmp.Diff(forward, reversed); diff != "" {
		t.Errorf("arrival order changed the table (-forward +reversed):\n%s", diff)
	}
}

func TestAggregatorCustomTimestampPath(t *testing.T) {
	agg := NewAggregator(hourly(t), []*measure.Unit{counterUnit("count")},
		WithTimestampPath("created.at"))

	rec := record.New(map[string]any{
		"created": map[string]any{"at": "2023-01-15T10:05:00Z"},
	})
	require.NoError(t, agg.Add(rec))

	table, err := agg.Drain()
	require.NoError(t, err)
	assert.Equal(t, 1.0, table.Sum("count"))
}
