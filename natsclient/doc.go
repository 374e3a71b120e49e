// Package natsclient wraps the NATS Go client with the pieces the NATS
// transports need: a circuit breaker around connection failures, JetStream
// stream and ordered-consumer helpers, and a KV store with compare-and-swap
// updates used for capture session records.
//
// Connection lifecycle:
//
//	Disconnected -> Connecting -> Connected <-> Reconnecting
//	                    |
//	                    +--> CircuitOpen (after repeated failures, cleared after a backoff)
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithName("kinect-logger"))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	stream, err := client.EnsureStream(ctx, jetstream.StreamConfig{
//	    Name:     "KINECT",
//	    Subjects: []string{"kinect.>"},
//	})
//
// Close drains the connection, bounded by the drain timeout and the
// deadline of the passed context.
//
// Integration tests use NewTestClient, which starts a JetStream-enabled
// nats-server container through testcontainers-go and is skipped under
// -short.
package natsclient
