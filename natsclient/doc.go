// Package natsclient wraps the NATS connection used for the optional
// enriched record fanout. Every record that survives enrichment can be
// published to a subject so downstream consumers see the stream in flight
// instead of waiting for the end-of-run table.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient([]string{"nats://localhost:4222"},
//		natsclient.WithName("trendstreams"),
//		natsclient.WithMaxReconnects(-1),
//	)
//	if err != nil {
//		return err
//	}
//
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
//	client.Publish(ctx, "trendstreams.enriched", line)
//
// # Circuit Breaker
//
// Transport level reconnection belongs to nats.go: the client configures
// MaxReconnects, ReconnectWait and PingInterval and reacts to the resulting
// callbacks. The circuit breaker sits one level up and protects against a
// broker that accepts connections and immediately fails them. After the
// configured threshold of failures the circuit opens, Connect and Publish
// return ErrCircuitOpen, and the breaker half-opens again once an
// exponentially growing backoff expires. Any successful operation resets
// the breaker.
//
// # Metrics
//
// WithMetrics wires connection state, reconnect counts and per subject
// publish outcomes into the core pipeline metrics:
//
//	registry := metric.NewMetricsRegistry()
//	client, err := natsclient.NewClient(urls,
//		natsclient.WithMetrics(registry.CoreMetrics()))
//
// # Testing
//
// TestClient starts a disposable NATS server container and connects a
// Client to it:
//
//	tc := natsclient.NewTestClient(t)
//	tc.Client.Publish(ctx, "trendstreams.enriched", data)
//
// Container tests honor testing.Short, so -short keeps local runs free of
// a Docker dependency.
package natsclient
