package bucket

import (
	"fmt"
	"time"

	"github.com/c360/trendstreams/errors"
)

// Bucketer maps timestamps onto fixed width, half open time buckets
// [start, start+width). A bucket is identified by its start instant in
// Unix milliseconds. Bucket membership depends only on the timestamp,
// the width and the anchor, never on arrival order.
type Bucketer struct {
	width  int64 // ms
	anchor int64 // ms
}

// BucketerOption configures a Bucketer.
type BucketerOption func(*Bucketer)

// WithAnchor aligns bucket boundaries to the given instant instead of the
// Unix epoch. A daily width anchored at midnight Eastern produces local
// calendar days, for example.
func WithAnchor(anchorMs int64) BucketerOption {
	return func(b *Bucketer) {
		b.anchor = anchorMs
	}
}

// NewBucketer creates a Bucketer for the given width. Widths under one
// millisecond cannot be represented and are rejected.
func NewBucketer(width time.Duration, opts ...BucketerOption) (*Bucketer, error) {
	if width < time.Millisecond {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Bucketer", "NewBucketer",
			fmt.Sprintf("bucket width %s is below 1ms", width))
	}

	b := &Bucketer{width: width.Milliseconds()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Key returns the bucket start for a timestamp in Unix milliseconds.
// The floor is taken toward negative infinity so instants before the
// anchor still land on correct boundaries.
func (b *Bucketer) Key(ts int64) int64 {
	return floorDiv(ts-b.anchor, b.width)*b.width + b.anchor
}

// Width returns the bucket width in milliseconds.
func (b *Bucketer) Width() int64 { return b.width }

// Anchor returns the alignment instant in Unix milliseconds.
func (b *Bucketer) Anchor() int64 { return b.anchor }

// floorDiv divides rounding toward negative infinity. Go's integer
// division truncates toward zero, which is wrong for negative numerators.
func floorDiv(a, w int64) int64 {
	q := a / w
	if a%w != 0 && (a < 0) != (w < 0) {
		q--
	}
	return q
}
