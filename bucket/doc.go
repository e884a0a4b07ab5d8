// Package bucket implements the time bucketed aggregation engine.
//
// # Overview
//
// Records stream through a single collecting pass: each one is assigned
// to a fixed width time bucket by its timestamp, every configured
// measurement unit observes it, and the yielded counter increments
// accumulate into per bucket totals. When the stream ends the aggregator
// drains into a rectangular Table, one row per bucket ascending, one
// column per counter in the order counters were first seen. WriteCSV
// renders the table with a stable header, so identical input and
// configuration produce byte identical output.
//
// Bucket membership is pure arithmetic over the timestamp, width and
// anchor. Late or out of order records land in their correct bucket, no
// mid stream flush exists because the full span of timestamps is only
// known once the stream is exhausted.
//
// # Failure policy
//
// A record without a parseable timestamp is dropped and counted, a
// failing measurement unit loses only its own observations for that
// record. Neither ends the run. The only drain time failures are the
// empty table condition with zero fill disabled and a zero fill range
// wider than the configured cap.
//
// # Quick Start
//
//	b, _ := bucket.NewBucketer(time.Hour)
//	agg := bucket.NewAggregator(b, units, bucket.WithZeroFill(true))
//	for rec := range stream {
//		_ = agg.Add(rec)
//	}
//	table, err := agg.Drain()
//	if err != nil {
//		return err
//	}
//	return bucket.WriteCSV(os.Stdout, table)
package bucket
