package csvfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trendstreams/bucket"
)

func sampleTable() *bucket.Table {
	return &bucket.Table{
		Counters: []string{"post_count", "geo_present"},
		Rows: []bucket.Row{
			{Start: 1672567200000, Values: []float64{2, 1}}, // 2023-01-01 10:00:00
			{Start: 1672570800000, Values: []float64{0, 0}}, // 2023-01-01 11:00:00
		},
	}
}

func TestWriter_WritesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	w := New(path)

	require.NoError(t, w.Write(sampleTable()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := "bucket_start,post_count,geo_present\n" +
		"2023-01-01 10:00:00,2,1\n" +
		"2023-01-01 11:00:00,0,0\n"
	assert.Equal(t, want, string(data))
}

func TestWriter_CustomLabelLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	w := New(path, WithLabelLayout("2006-01-02T15:04:05Z"))

	require.NoError(t, w.Write(sampleTable()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2023-01-01T10:00:00Z,2,1")
}

func TestWriter_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0644))

	w := New(path)
	require.NoError(t, w.Write(sampleTable()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old")
	assert.Contains(t, string(data), "bucket_start")
}

func TestWriter_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "table.csv")
	w := New(path)

	require.NoError(t, w.Write(sampleTable()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestWriter_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.csv")

	w := New(path)
	require.NoError(t, w.Write(sampleTable()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "table.csv", entries[0].Name())
}

func TestWriter_NilTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	w := New(path)

	err := w.Write(nil)
	require.Error(t, err)

	// Failed writes must not leave the target or temp files behind.
	entries, readErr := os.ReadDir(filepath.Dir(path))
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestWriter_HeaderOnlyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	w := New(path)

	require.NoError(t, w.Write(&bucket.Table{Counters: []string{"post_count"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bucket_start,post_count\n", string(data))
}
