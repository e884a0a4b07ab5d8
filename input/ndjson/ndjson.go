// Package ndjson reads newline delimited JSON post documents from stdin or a
// file, one document per line, in arrival order.
package ndjson

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/c360/trendstreams/config"
	"github.com/c360/trendstreams/errors"
)

// DefaultMaxLineBytes caps a single NDJSON line. Post documents with long
// bodies and heavy enrichment metadata fit well under this.
const DefaultMaxLineBytes = 16 << 20

// Stats reports scanner progress counters.
type Stats struct {
	Lines int64
	Bytes int64
}

// Scanner pulls NDJSON lines from an underlying reader. Blank lines are
// skipped. Next returns io.EOF at end of input.
type Scanner struct {
	name    string
	file    *os.File // nil when the reader is not owned by the scanner
	scanner *bufio.Scanner
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool

	lines atomic.Int64
	bytes atomic.Int64
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger used for progress and error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger.With("component", "ndjson_input")
		}
	}
}

// WithRateLimit throttles Next to perSecond lines per second with the given
// burst. A perSecond of 0 leaves the scanner unthrottled.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Scanner) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxLineBytes overrides the per-line size cap.
func WithMaxLineBytes(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), n)
		}
	}
}

// NewScanner wraps an arbitrary reader. The scanner does not close r; use
// Open for sources the scanner should own.
func NewScanner(r io.Reader, name string, opts ...Option) *Scanner {
	s := &Scanner{
		name:    name,
		scanner: bufio.NewScanner(r),
		logger:  slog.Default().With("component", "ndjson_input"),
	}
	s.scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), DefaultMaxLineBytes)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open builds a Scanner from the input section of the run configuration,
// reading stdin or opening the configured file. File sources are owned by
// the scanner and closed by Close.
func Open(cfg config.InputConfig, opts ...Option) (*Scanner, error) {
	switch cfg.Source {
	case config.SourceStdin, "":
		opts = append(opts, WithRateLimit(cfg.RateLimit, cfg.RateBurst))
		return NewScanner(os.Stdin, config.SourceStdin, opts...), nil

	case config.SourceFile:
		if cfg.Path == "" {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Scanner", "Open",
				"file source requires input.path")
		}
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Scanner", "Open",
				fmt.Sprintf("open %s", cfg.Path))
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, errors.WrapInvalid(err, "Scanner", "Open",
				fmt.Sprintf("stat %s", cfg.Path))
		}
		if info.IsDir() {
			f.Close()
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Scanner", "Open",
				fmt.Sprintf("%s is a directory", cfg.Path))
		}

		opts = append(opts, WithRateLimit(cfg.RateLimit, cfg.RateBurst))
		s := NewScanner(f, cfg.Path, opts...)
		s.file = f
		return s, nil

	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Scanner", "Open",
			fmt.Sprintf("unsupported input source %q", cfg.Source))
	}
}

// Name identifies the source for logging and metrics labels.
func (s *Scanner) Name() string {
	return s.name
}

// Next returns the next non-blank line. The returned slice is a copy and
// stays valid across calls. Returns io.EOF when the input is exhausted and
// a transient error when the underlying reader fails.
func (s *Scanner) Next(ctx context.Context) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.EOF
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, errors.WrapTransient(err, "Scanner", "Next",
					fmt.Sprintf("read %s", s.name))
			}
			return nil, io.EOF
		}

		line := s.scanner.Bytes()
		s.bytes.Add(int64(len(line)) + 1)
		if len(trimSpace(line)) == 0 {
			continue
		}

		s.lines.Add(1)
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
}

// Stats returns the lines and bytes consumed so far.
func (s *Scanner) Stats() Stats {
	return Stats{
		Lines: s.lines.Load(),
		Bytes: s.bytes.Load(),
	}
}

// Close releases the underlying file when the scanner owns one. Safe to call
// more than once.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return errors.WrapTransient(err, "Scanner", "Close",
				fmt.Sprintf("close %s", s.name))
		}
		s.file = nil
	}
	return nil
}

// trimSpace strips ASCII whitespace without allocating.
func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
