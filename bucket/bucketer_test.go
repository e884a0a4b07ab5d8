package bucket

import (
	"testing"
	"time"

	"github.com/c360/trendstreams/pkg/timestamp"
)

func mustMs(t *testing.T, value string) int64 {
	t.Helper()
	ms, err := timestamp.Parse(value)
	if err != nil {
		t.Fatalf("Parse(%q): %v", value, err)
	}
	return ms
}

func TestBucketerKey(t *testing.T) {
	tests := []struct {
		name   string
		width  time.Duration
		anchor string
		ts     string
		want   string
	}{
		{"mid hour", time.Hour, "", "2023-01-15T10:05:00Z", "2023-01-15T10:00:00Z"},
		{"on boundary", time.Hour, "", "2023-01-15T10:00:00Z", "2023-01-15T10:00:00Z"},
		{"last instant", time.Hour, "", "2023-01-15T10:59:59.999Z", "2023-01-15T10:00:00Z"},
		{"next boundary", time.Hour, "", "2023-01-15T11:00:00Z", "2023-01-15T11:00:00Z"},
		{"daily width", 24 * time.Hour, "", "2023-01-15T23:59:00Z", "2023-01-15T00:00:00Z"},
		{"minute width", time.Minute, "", "2023-01-15T10:05:42Z", "2023-01-15T10:05:00Z"},
		{"before epoch", time.Hour, "", "1969-12-31T23:30:00Z", "1969-12-31T23:00:00Z"},
		{"half hour anchor", time.Hour, "1970-01-01T00:30:00Z", "2023-01-15T10:05:00Z", "2023-01-15T09:30:00Z"},
		{"half hour anchor late", time.Hour, "1970-01-01T00:30:00Z", "2023-01-15T10:45:00Z", "2023-01-15T10:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []BucketerOption{}
			if tt.anchor != "" {
				opts = append(opts, WithAnchor(mustMs(t, tt.anchor)))
			}
			b, err := NewBucketer(tt.width, opts...)
			if err != nil {
				t.Fatalf("NewBucketer: %v", err)
			}

			got := b.Key(mustMs(t, tt.ts))
			want := mustMs(t, tt.want)
			if got != want {
				t.Errorf("Key(%s) = %s, want %s", tt.ts,
					timestamp.Format(got), timestamp.Format(want))
			}
		})
	}
}

func TestBucketerSameBucket(t *testing.T) {
	b, err := NewBucketer(time.Hour)
	if err != nil {
		t.Fatalf("NewBucketer: %v", err)
	}

	pairs := []struct {
		a, b string
		same bool
	}{
		{"2023-01-15T10:05:00Z", "2023-01-15T10:50:00Z", true},
		{"2023-01-15T10:59:59Z", "2023-01-15T11:00:00Z", false},
		{"2023-01-15T10:00:00Z", "2023-01-15T10:00:00Z", true},
		{"2023-01-15T10:30:00Z", "2023-01-16T10:30:00Z", false},
	}

	for _, p := range pairs {
		got := b.Key(mustMs(t, p.a)) == b.Key(mustMs(t, p.b))
		if got != p.same {
			t.Errorf("same bucket for %s and %s = %v, want %v", p.a, p.b, got, p.same)
		}
	}
}

func TestNewBucketerRejectsWidth(t *testing.T) {
	for _, width := range []time.Duration{0, -time.Hour, 500 * time.Microsecond} {
		if _, err := NewBucketer(width); err == nil {
			t.Errorf("NewBucketer(%s) accepted an unusable width", width)
		}
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		a, w, want int64
	}{
		{7, 2, 3},
		{6, 2, 3},
		{0, 5, 0},
		{-1, 2, -1},
		{-6, 2, -3},
		{-7, 2, -4},
		{-1, 3600000, -1},
		{3599999, 3600000, 0},
	}

	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.w); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.w, got, tt.want)
		}
	}
}
