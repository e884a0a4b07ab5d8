package evaluate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/c360/trendstreams/config"
	"github.com/c360/trendstreams/errors"
	"github.com/c360/trendstreams/record"
)

// Client defaults.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultBatchSize  = 500
	DefaultRetryCount = 3
)

// scoreRequest is one batch posted to the service.
type scoreRequest struct {
	Records []json.RawMessage `json:"records"`
}

// scoreResponse is the service's verdict on one batch: how many records it
// could model and the category percentages over those.
type scoreResponse struct {
	Usable     int                `json:"usable"`
	Categories map[string]float64 `json:"categories"`
}

// Client posts record batches to the modeling service. The service scores
// plain record sets; split bookkeeping and relative math stay client side.
type Client struct {
	endpoint   string
	mode       string
	batchSize  int
	retryCount int
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for batch reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "evaluator")
		}
	}
}

// WithHTTPClient substitutes the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeaders adds headers to every request, typically authentication.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithRetryCount overrides the per-batch retry budget.
func WithRetryCount(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryCount = n
		}
	}
}

// NewClient builds a Client from the evaluator section of the run
// configuration.
func NewClient(cfg config.EvaluatorConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient",
			"evaluator.url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "NewClient",
			fmt.Sprintf("parse %s", cfg.URL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "NewClient",
			fmt.Sprintf("url scheme must be http or https, got %q", u.Scheme))
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeAbsolute
	}
	if mode != ModeAbsolute && mode != ModeRelative {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "NewClient",
			fmt.Sprintf("mode must be %s or %s, got %q", ModeAbsolute, ModeRelative, mode))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	c := &Client{
		endpoint:   cfg.URL,
		mode:       mode,
		batchSize:  batchSize,
		retryCount: DefaultRetryCount,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "evaluator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mode returns the configured evaluation mode.
func (c *Client) Mode() string {
	return c.mode
}

// Evaluate scores one undivided record set.
func (c *Client) Evaluate(ctx context.Context, records []*record.Record) (*Result, error) {
	score, err := c.scoreGroup(ctx, "all", records)
	if err != nil {
		return nil, err
	}

	return &Result{
		Mode:       ModeAbsolute,
		Usable:     score.usable,
		Categories: score.categories,
	}, nil
}

// EvaluateSplit scores both partition groups and reports per-category
// percentage point differences, analyzed minus baseline.
func (c *Client) EvaluateSplit(ctx context.Context, p *Partition) (*Result, error) {
	if p == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Client", "EvaluateSplit",
			"nil partition")
	}

	analyzed, err := c.scoreGroup(ctx, "analyzed", p.Analyzed)
	if err != nil {
		return nil, err
	}
	baseline, err := c.scoreGroup(ctx, "baseline", p.Baseline)
	if err != nil {
		return nil, err
	}

	diffs := make(map[string]float64, len(analyzed.categories))
	for cat, pct := range analyzed.categories {
		diffs[cat] = pct - baseline.categories[cat]
	}
	for cat, pct := range baseline.categories {
		if _, seen := analyzed.categories[cat]; !seen {
			diffs[cat] = -pct
		}
	}

	return &Result{
		Mode:           ModeRelative,
		UsableAnalyzed: analyzed.usable,
		UsableBaseline: baseline.usable,
		Categories:     diffs,
	}, nil
}

// Run evaluates records under the configured mode, splitting first when the
// mode is relative.
func (c *Client) Run(ctx context.Context, records []*record.Record, split SplitConfig) (*Result, error) {
	if c.mode == ModeRelative {
		p, err := Split(records, split)
		if err != nil {
			return nil, err
		}
		return c.EvaluateSplit(ctx, p)
	}
	return c.Evaluate(ctx, records)
}

// groupScore is the merged outcome of every batch for one group.
type groupScore struct {
	usable     int
	categories map[string]float64
}

// scoreGroup posts a group in batches and merges batch percentages weighted
// by usable record counts, so a short final batch never skews the result.
func (c *Client) scoreGroup(ctx context.Context, group string, records []*record.Record) (*groupScore, error) {
	merged := &groupScore{categories: make(map[string]float64)}
	if len(records) == 0 {
		return merged, nil
	}

	weighted := make(map[string]float64)

	for start := 0; start < len(records); start += c.batchSize {
		end := start + c.batchSize
		if end > len(records) {
			end = len(records)
		}

		resp, err := c.postBatch(ctx, records[start:end])
		if err != nil {
			return nil, errors.WrapTransient(err, "Client", "Evaluate",
				fmt.Sprintf("score %s records %d..%d", group, start, end))
		}

		merged.usable += resp.Usable
		for cat, pct := range resp.Categories {
			weighted[cat] += pct * float64(resp.Usable)
		}

		c.logger.Debug("evaluator batch scored",
			"group", group,
			"batch_start", start,
			"batch_size", end-start,
			"usable", resp.Usable)
	}

	if merged.usable > 0 {
		for cat, sum := range weighted {
			merged.categories[cat] = sum / float64(merged.usable)
		}
	}
	return merged, nil
}

// postBatch serializes one batch, preserving each record's metadata map, and
// posts it with retries.
func (c *Client) postBatch(ctx context.Context, records []*record.Record) (*scoreResponse, error) {
	req := scoreRequest{Records: make([]json.RawMessage, 0, len(records))}
	for _, rec := range records {
		line, err := rec.MarshalEnriched()
		if err != nil {
			return nil, err
		}
		req.Records = append(req.Records, line)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "postBatch", "encode request")
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt*attempt) * 100 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// post performs one HTTP exchange.
func (c *Client) post(ctx context.Context, body []byte) (*scoreResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &decoded, nil
}
