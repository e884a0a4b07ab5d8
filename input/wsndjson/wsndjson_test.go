package wsndjson

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trendstreams/config"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// newStreamServer serves one WebSocket connection per handler invocation.
func newStreamServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		handler(conn)
	}))

	wsURL := "ws" + server.URL[4:] // http:// -> ws://
	return server, wsURL
}

func closeNormally(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	conn.Close()
}

func collect(t *testing.T, c *Client) []string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []string
	for {
		line, err := c.Next(ctx)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(line))
	}
}

func TestClient_ReceivesLinesInOrder(t *testing.T) {
	server, wsURL := newStreamServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":2}`))
		closeNormally(conn)
	})
	defer server.Close()

	client, err := New(config.InputConfig{URL: wsURL})
	require.NoError(t, err)

	require.NoError(t, client.Start(context.Background()))
	defer client.Stop(2 * time.Second)

	lines := collect(t, client)
	require.Len(t, lines, 2)
	assert.Equal(t, `{"id":1}`, lines[0])
	assert.Equal(t, `{"id":2}`, lines[1])

	stats := client.Stats()
	assert.Equal(t, int64(2), stats.Frames)
	assert.Equal(t, int64(2), stats.Lines)
}

func TestClient_SplitsMultiLineFrames(t *testing.T) {
	server, wsURL := newStreamServer(t, func(conn *websocket.Conn) {
		frame := "{\"id\":1}\n{\"id\":2}\n\n{\"id\":3}"
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		closeNormally(conn)
	})
	defer server.Close()

	client, err := New(config.InputConfig{URL: wsURL})
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop(2 * time.Second)

	lines := collect(t, client)
	require.Len(t, lines, 3)
	assert.Equal(t, `{"id":3}`, lines[2])
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	var connections atomic.Int32

	server, wsURL := newStreamServer(t, func(conn *websocket.Conn) {
		n := connections.Add(1)
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1}`))
			conn.Close() // abrupt drop, no close handshake
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":2}`))
		closeNormally(conn)
	})
	defer server.Close()

	client, err := New(config.InputConfig{URL: wsURL},
		WithReconnect(3, 10*time.Millisecond, 50*time.Millisecond, 2.0))
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop(2 * time.Second)

	lines := collect(t, client)
	require.Len(t, lines, 2)
	assert.Equal(t, `{"id":2}`, lines[1])

	assert.GreaterOrEqual(t, client.Stats().Reconnects, int64(1))
	assert.GreaterOrEqual(t, connections.Load(), int32(2))
}

func TestClient_NoReconnectWhenDisabled(t *testing.T) {
	var connections atomic.Int32

	server, wsURL := newStreamServer(t, func(conn *websocket.Conn) {
		connections.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1}`))
		conn.Close()
	})
	defer server.Close()

	client, err := New(config.InputConfig{URL: wsURL},
		WithReconnect(0, 10*time.Millisecond, 50*time.Millisecond, 2.0))
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop(2 * time.Second)

	lines := collect(t, client)
	assert.Len(t, lines, 1)
	assert.Equal(t, int32(1), connections.Load())
}

func TestClient_StartFailsOnUnreachableEndpoint(t *testing.T) {
	client, err := New(config.InputConfig{URL: "ws://127.0.0.1:1/stream"},
		WithHandshakeTimeout(200*time.Millisecond))
	require.NoError(t, err)

	err = client.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")
}

func TestClient_StartTwice(t *testing.T) {
	server, wsURL := newStreamServer(t, func(conn *websocket.Conn) {
		closeNormally(conn)
	})
	defer server.Close()

	client, err := New(config.InputConfig{URL: wsURL})
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop(2 * time.Second)

	err = client.Start(context.Background())
	assert.Error(t, err)
}

func TestClient_StopBeforeStart(t *testing.T) {
	client, err := New(config.InputConfig{URL: "ws://localhost:9999/stream"})
	require.NoError(t, err)
	assert.NoError(t, client.Stop(time.Second))
}

func TestClient_StopInterruptsNext(t *testing.T) {
	ready := make(chan struct{})
	server, wsURL := newStreamServer(t, func(conn *websocket.Conn) {
		close(ready)
		// Hold the connection open without sending anything.
		time.Sleep(2 * time.Second)
		conn.Close()
	})
	defer server.Close()

	client, err := New(config.InputConfig{URL: wsURL},
		WithReconnect(0, 10*time.Millisecond, 50*time.Millisecond, 2.0))
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	<-ready

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = client.Stop(2 * time.Second)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err = client.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty url", ""},
		{"http scheme", "http://example.com/stream"},
		{"garbage", "://not-a-url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(config.InputConfig{URL: tt.url})
			assert.Error(t, err)
		})
	}
}

func TestClient_Name(t *testing.T) {
	client, err := New(config.InputConfig{URL: "ws://localhost:9999/stream"})
	require.NoError(t, err)
	assert.Equal(t, config.SourceWebSocket, client.Name())
}
