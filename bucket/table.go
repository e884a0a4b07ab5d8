package bucket

// Table is the drained aggregation result: one row per emitted bucket in
// ascending start order, one column per counter in first seen order.
// Every row carries a value for every counter, so the table is always
// rectangular regardless of which buckets a counter appeared in.
type Table struct {
	Counters []string
	Rows     []Row
}

// Row is one emitted bucket.
type Row struct {
	Start  int64 // bucket start, Unix ms
	Values []float64
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// Column returns the index of a counter, or -1 when it never appeared.
func (t *Table) Column(counter string) int {
	for i, c := range t.Counters {
		if c == counter {
			return i
		}
	}
	return -1
}

// Sum totals one counter across all rows.
func (t *Table) Sum(counter string) float64 {
	col := t.Column(counter)
	if col < 0 {
		return 0
	}
	var sum float64
	for _, row := range t.Rows {
		sum += row.Values[col]
	}
	return sum
}
