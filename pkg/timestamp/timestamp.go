// Package timestamp provides standardized Unix timestamp handling utilities.
//
// This package uses int64 milliseconds as the canonical timestamp format to
// eliminate timestamp parsing bugs and provide consistent behavior across the
// codebase. All timestamps are stored as milliseconds since Unix epoch (UTC).
//
// Zero Value Semantics:
//   - A timestamp value of 0 means "not set" or "unknown"
//   - Functions handle zero values gracefully, returning appropriate defaults
//
// Parse accepts the formats that show up in real post streams: RFC3339 with
// or without fractional seconds, the classic social timeline form
// "Mon Jan 02 15:04:05 -0700 2006", naive "2006-01-02 15:04:05" (treated as
// UTC), and numeric seconds or milliseconds.
//
// Usage Examples:
//
//	// Current time
//	now := timestamp.Now()
//
//	// Convert from time.Time
//	ts := timestamp.ToUnixMs(time.Now())
//
//	// Format for display
//	display := timestamp.Format(ts)
//
//	// Parse various formats
//	ts, err := timestamp.Parse("2023-01-01T12:00:00.000Z")
//	ts, err = timestamp.Parse(1672574400000)
package timestamp

import (
	"fmt"
	"strconv"
	"time"
)

// Layouts tried in order when parsing string timestamps. RFC3339 also
// accepts fractional seconds, which covers the millisecond variant used
// by activity-stream feeds.
var stringLayouts = []string{
	time.RFC3339,
	time.RubyDate,
	"2006-01-02 15:04:05",
}

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format converts Unix milliseconds to RFC3339 string for display.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// FormatLayout converts Unix milliseconds to a string in the given layout,
// rendered in UTC. Returns empty string if timestamp is 0.
func FormatLayout(ms int64, layout string) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(layout)
}

// Parse converts various timestamp formats to Unix milliseconds.
// Supports:
//   - int64 (assumed to be milliseconds if > 1e12, otherwise seconds)
//   - float64 (converted to int64, same logic as int64)
//   - string (RFC3339, social timeline format, naive datetime, or Unix number)
//   - time.Time
//
// Returns an error for nil input, empty strings, and values no supported
// format can make sense of.
func Parse(input any) (int64, error) {
	if input == nil {
		return 0, fmt.Errorf("nil timestamp")
	}

	switch v := input.(type) {
	case int64:
		// If value is greater than 1e12 (year 2001 in seconds), assume
		// milliseconds. Otherwise assume seconds and convert.
		if v > 1e12 {
			return v, nil
		}
		return v * 1000, nil

	case float64:
		// Same heuristic as int64
		if v > 1e12 {
			return int64(v), nil
		}
		return int64(v * 1000), nil

	case int:
		return Parse(int64(v))

	case int32:
		return Parse(int64(v))

	case string:
		if v == "" {
			return 0, fmt.Errorf("empty timestamp string")
		}

		for _, layout := range stringLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return ToUnixMs(t.UTC()), nil
			}
		}

		// Unix timestamp rendered as a string
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return Parse(ts)
		}
		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return Parse(ts)
		}

		return 0, fmt.Errorf("unrecognized timestamp format: %q", v)

	case time.Time:
		if v.IsZero() {
			return 0, fmt.Errorf("zero time value")
		}
		return ToUnixMs(v), nil

	case *time.Time:
		if v == nil {
			return 0, fmt.Errorf("nil time value")
		}
		return Parse(*v)

	default:
		return 0, fmt.Errorf("unsupported timestamp type %T", input)
	}
}

// IsZero checks if a timestamp is unset (zero).
func IsZero(ms int64) bool {
	return ms == 0
}

// Min returns the earlier of two timestamps.
// Zero values are treated as "later than any other time".
func Min(a, b int64) int64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// Max returns the later of two timestamps.
// Zero values are treated as "earlier than any other time".
func Max(a, b int64) int64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a > b {
		return a
	}
	return b
}

// Validate checks if a timestamp is valid (non-negative and reasonable).
// Returns an error if the timestamp is negative or unreasonably large.
func Validate(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", ms)
	}
	// Check if timestamp is unreasonably far in the future (year 3000)
	if ms > 32503680000000 {
		return fmt.Errorf("timestamp too far in future: %d", ms)
	}
	return nil
}
