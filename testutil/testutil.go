// Package testutil carries shared fixtures for integration tests: a small
// canonical post stream in the activity-streams shape the pipeline consumes,
// and file helpers for feeding it through real inputs and outputs.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// SamplePostsNDJSON is the canonical four-post fixture. It spans four clock
// hours with a gap at 16:00, mixes verified and unverified authors, geo
// tagged and untagged posts, and repeats hashtags across records so counter
// ordering and zero-fill behavior are both observable in the aggregate.
const SamplePostsNDJSON = `{"id":"tag:search.twitter.com,2005:100001","verb":"post","postedTime":"2023-06-01T14:05:00.000Z","body":"Kickoff! #worldcup excitement builds","actor":{"id":"id:twitter.com:501","preferredUsername":"matchday","verified":true}}
{"id":"tag:search.twitter.com,2005:100002","verb":"post","postedTime":"2023-06-01T14:20:00.000Z","body":"Great goal! #worldcup #messi","actor":{"id":"id:twitter.com:502","preferredUsername":"fanzone","verified":false},"geo":{"type":"Point","coordinates":[48.85,2.35]}}
{"id":"tag:search.twitter.com,2005:100003","verb":"post","postedTime":"2023-06-01T15:45:00.000Z","body":"Halftime thoughts #worldcup","actor":{"id":"id:twitter.com:503","preferredUsername":"pitchside","verified":false}}
{"id":"tag:search.twitter.com,2005:100004","verb":"post","postedTime":"2023-06-01T17:10:00.000Z","body":"Full time. What a game #messi","actor":{"id":"id:twitter.com:504","preferredUsername":"matchday","verified":true},"geo":{"type":"Point","coordinates":[51.556,-0.2796]}}
`

// SamplePostCount is the number of records in SamplePostsNDJSON.
const SamplePostCount = 4

// WriteNDJSON writes data to a file under the test's temp directory and
// returns its path.
func WriteNDJSON(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posts.ndjson")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// ReadLines reads a file and returns its non-empty lines.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
