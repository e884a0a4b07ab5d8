package bucket

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/pkg/timestamp"
)

// DefaultLabelLayout renders bucket starts the way the downstream trend
// tooling expects them, naive UTC without a zone suffix.
const DefaultLabelLayout = "2006-01-02 15:04:05"

// csvOptions holds the serializer knobs.
type csvOptions struct {
	labelLayout string
	labelColumn string
}

// CSVOption configures WriteCSV.
type CSVOption func(*csvOptions)

// WithLabelLayout overrides the bucket label time layout.
func WithLabelLayout(layout string) CSVOption {
	return func(o *csvOptions) {
		if layout != "" {
			o.labelLayout = layout
		}
	}
}

// WithLabelColumn overrides the header name of the bucket label column.
func WithLabelColumn(name string) CSVOption {
	return func(o *csvOptions) {
		if name != "" {
			o.labelColumn = name
		}
	}
}

// WriteCSV renders a drained table as comma separated text: one header
// line naming the bucket label column and every counter, then one line
// per bucket. Counter values print as plain decimals with no trailing
// zeros so integer counts stay integers, keeping reruns byte identical.
func WriteCSV(w io.Writer, table *Table, opts ...CSVOption) error {
	if table == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Serializer", "WriteCSV",
			"nil table")
	}

	o := csvOptions{
		labelLayout: DefaultLabelLayout,
		labelColumn: "bucket_start",
	}
	for _, opt := range opts {
		opt(&o)
	}

	cw := csv.NewWriter(w)

	header := make([]string, 0, len(table.Counters)+1)
	header = append(header, o.labelColumn)
	header = append(header, table.Counters...)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "Serializer", "WriteCSV", "write header")
	}

	line := make([]string, 0, len(header))
	for _, row := range table.Rows {
		line = line[:0]
		line = append(line, timestamp.FormatLayout(row.Start, o.labelLayout))
		for _, v := range row.Values {
			line = append(line, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(line); err != nil {
			return errors.Wrap(err, "Serializer", "WriteCSV", "write row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "Serializer", "WriteCSV", "flush")
	}
	return nil
}
