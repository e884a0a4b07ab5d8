// Package wsndjson streams newline delimited JSON post documents from a
// WebSocket endpoint. Each text frame carries one or more documents separated
// by newlines. The client reconnects with exponential backoff when the
// connection drops and treats a normal close as end of stream.
package wsndjson

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/trendstreams/config"
	"github.com/c360/trendstreams/errors"
)

// Reconnect defaults.
const (
	DefaultMaxRetries       = 5
	DefaultInitialInterval  = 1 * time.Second
	DefaultMaxInterval      = 30 * time.Second
	DefaultBackoffMult      = 2.0
	DefaultHandshakeTimeout = 45 * time.Second
	DefaultQueueSize        = 1024
)

// Stats reports client progress counters.
type Stats struct {
	Frames     int64
	Lines      int64
	Reconnects int64
	Errors     int64
}

// Client reads NDJSON frames from a WebSocket server and hands lines out one
// at a time through Next.
type Client struct {
	url              string
	header           http.Header
	handshakeTimeout time.Duration
	queueSize        int
	logger           *slog.Logger

	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64

	dialer *websocket.Dialer

	conn   *websocket.Conn
	connMu sync.Mutex

	lines chan []byte

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
	doneOnce     sync.Once
	started      atomic.Bool
	lifecycleMu  sync.Mutex
	wg           sync.WaitGroup

	attempts   atomic.Int32
	frames     atomic.Int64
	lineCount  atomic.Int64
	reconnects atomic.Int64
	errorCount atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "wsndjson_input")
		}
	}
}

// WithRequestHeader adds headers to the handshake request, typically an
// Authorization header.
func WithRequestHeader(header http.Header) Option {
	return func(c *Client) {
		c.header = header
	}
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithQueueSize sets the line buffer between the read loop and Next.
func WithQueueSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithReconnect tunes the reconnection policy. maxRetries 0 disables
// reconnection entirely, a negative value retries without limit.
func WithReconnect(maxRetries int, initial, max time.Duration, multiplier float64) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		if initial > 0 {
			c.initialInterval = initial
		}
		if max > 0 {
			c.maxInterval = max
		}
		if multiplier >= 1 {
			c.multiplier = multiplier
		}
	}
}

// New validates the endpoint and builds a Client. The connection is
// established by Start.
func New(cfg config.InputConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New",
			"websocket source requires input.url")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "New",
			fmt.Sprintf("parse %s", cfg.URL))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "New",
			fmt.Sprintf("url scheme must be ws or wss, got %q", u.Scheme))
	}

	c := &Client{
		url:              cfg.URL,
		handshakeTimeout: DefaultHandshakeTimeout,
		queueSize:        DefaultQueueSize,
		logger:           slog.Default().With("component", "wsndjson_input"),
		maxRetries:       DefaultMaxRetries,
		initialInterval:  DefaultInitialInterval,
		maxInterval:      DefaultMaxInterval,
		multiplier:       DefaultBackoffMult,
		shutdown:         make(chan struct{}),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.dialer = &websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	c.lines = make(chan []byte, c.queueSize)
	return c, nil
}

// Name identifies the source for logging and metrics labels.
func (c *Client) Name() string {
	return config.SourceWebSocket
}

// Start dials the endpoint and begins reading frames. The first connection
// is made synchronously so a bad endpoint fails the run before any record
// is consumed.
func (c *Client) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.started.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Client", "Start",
			"check started state")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return errors.WrapTransient(err, "Client", "Start",
				fmt.Sprintf("dial %s (status %d)", c.url, resp.StatusCode))
		}
		return errors.WrapTransient(err, "Client", "Start",
			fmt.Sprintf("dial %s", c.url))
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.wg.Add(1)
	go c.run(ctx, conn)

	c.started.Store(true)
	c.logger.Info("websocket input connected", "url", c.url)
	return nil
}

// Next returns the next NDJSON line in arrival order. Returns io.EOF once
// the stream has ended and every buffered line has been consumed.
func (c *Client) Next(ctx context.Context) ([]byte, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			return nil, io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns the counters accumulated since Start.
func (c *Client) Stats() Stats {
	return Stats{
		Frames:     c.frames.Load(),
		Lines:      c.lineCount.Load(),
		Reconnects: c.reconnects.Load(),
		Errors:     c.errorCount.Load(),
	}
}

// Stop closes the connection and waits for the read loop to drain.
func (c *Client) Stop(timeout time.Duration) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.started.Load() {
		return nil
	}

	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})
	c.closeConn()

	waitCh := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"Client", "Stop", "wait for read loop")
	}

	c.doneOnce.Do(func() {
		close(c.done)
	})
	c.started.Store(false)
	return nil
}

// Close releases the connection without waiting, satisfying the source
// contract used by the pipeline.
func (c *Client) Close() error {
	return c.Stop(5 * time.Second)
}

// run reads frames from the current connection and reconnects on failure
// until the stream ends or the client is stopped.
func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	defer close(c.lines)

	for {
		normal := c.readFrames(conn)

		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()

		if normal {
			c.logger.Info("websocket input stream ended", "url", c.url)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		conn = c.reconnect(ctx)
		if conn == nil {
			return
		}
	}
}

// readFrames consumes frames until the connection fails or closes, splitting
// each frame into NDJSON lines. Returns true for a normal close.
func (c *Client) readFrames(conn *websocket.Conn) bool {
	for {
		select {
		case <-c.shutdown:
			return true
		default:
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true
			}
			select {
			case <-c.shutdown:
				return true
			default:
			}
			c.errorCount.Add(1)
			c.logger.Warn("websocket read failed", "url", c.url, "error", err)
			return false
		}

		c.frames.Add(1)
		c.attempts.Store(0)

		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			out := make([]byte, len(line))
			copy(out, line)

			select {
			case c.lines <- out:
				c.lineCount.Add(1)
			case <-c.shutdown:
				return true
			}
		}
	}
}

// reconnect dials again with exponential backoff. Returns nil once the retry
// budget is spent or the client is shutting down.
func (c *Client) reconnect(ctx context.Context) *websocket.Conn {
	for {
		if !c.shouldReconnect() {
			c.logger.Warn("websocket reconnect budget exhausted", "url", c.url,
				"attempts", c.attempts.Load())
			return nil
		}

		delay := c.backoffDelay()
		c.logger.Info("websocket reconnecting", "url", c.url,
			"attempt", c.attempts.Load(), "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		case <-c.shutdown:
			return nil
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			c.errorCount.Add(1)
			continue
		}

		c.reconnects.Add(1)
		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.logger.Info("websocket input reconnected", "url", c.url)
		return conn
	}
}

// shouldReconnect consumes one retry from the budget.
func (c *Client) shouldReconnect() bool {
	if c.maxRetries == 0 {
		return false
	}
	current := c.attempts.Load()
	if c.maxRetries > 0 && int(current) >= c.maxRetries {
		return false
	}
	c.attempts.Add(1)
	return true
}

// backoffDelay grows the wait exponentially up to the configured ceiling.
func (c *Client) backoffDelay() time.Duration {
	attempts := c.attempts.Load()

	delay := c.initialInterval
	for j := int32(1); j < attempts; j++ {
		delay = time.Duration(float64(delay) * c.multiplier)
		if delay > c.maxInterval {
			return c.maxInterval
		}
	}
	return delay
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}
