// Package csvfile persists a drained aggregate table as CSV. File writes go
// through a temp file and rename so a crashed run never leaves a partial
// table behind. A path of "" or "-" writes stdout.
package csvfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c360/trendstreams/bucket"
	"github.com/c360/trendstreams/errors"
)

// Writer renders tables with a fixed label layout chosen at construction.
type Writer struct {
	path    string
	csvOpts []bucket.CSVOption
	logger  *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger used for write reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger.With("component", "csv_output")
		}
	}
}

// WithLabelLayout overrides the bucket label time layout.
func WithLabelLayout(layout string) Option {
	return func(w *Writer) {
		if layout != "" {
			w.csvOpts = append(w.csvOpts, bucket.WithLabelLayout(layout))
		}
	}
}

// New builds a Writer targeting path.
func New(path string, opts ...Option) *Writer {
	w := &Writer{
		path:   path,
		logger: slog.Default().With("component", "csv_output"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders the table. File targets are written atomically: the CSV is
// staged in a temp file in the destination directory, synced, then renamed
// over the target.
func (w *Writer) Write(table *bucket.Table) error {
	if w.path == "" || w.path == "-" {
		if err := bucket.WriteCSV(os.Stdout, table, w.csvOpts...); err != nil {
			return err
		}
		w.logger.Info("aggregate table written", "path", "stdout",
			"buckets", len(table.Rows), "counters", len(table.Counters))
		return nil
	}

	dir := filepath.Dir(w.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapFatal(err, "Writer", "Write",
				fmt.Sprintf("create directory %s", dir))
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*")
	if err != nil {
		return errors.WrapTransient(err, "Writer", "Write",
			fmt.Sprintf("create temp file in %s", dir))
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := bucket.WriteCSV(tmp, table, w.csvOpts...); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.WrapTransient(err, "Writer", "Write",
			fmt.Sprintf("sync %s", tmpName))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(err, "Writer", "Write",
			fmt.Sprintf("close %s", tmpName))
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(err, "Writer", "Write",
			fmt.Sprintf("chmod %s", tmpName))
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(err, "Writer", "Write",
			fmt.Sprintf("rename to %s", w.path))
	}

	w.logger.Info("aggregate table written", "path", w.path,
		"buckets", len(table.Rows), "counters", len(table.Counters))
	return nil
}
