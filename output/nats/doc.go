// Package nats provides a protocol.Sink that publishes framed coded messages
// to a NATS JetStream stream.
//
// Every capture run is a session with its own ID (a UUID unless set with
// WithSessionID). Frames are published on "<subject>.<session>" with message
// IDs "<session>-<n>", so the stream's duplicate window drops a frame that a
// retried publish already stored. Open creates the stream (subjects
// "<subject>.>") when missing and writes a natsclient.SessionRecord to the
// session bucket; Close stores the final frame and byte counts, which
// input/nats uses to detect the end of a replay.
//
// Usage:
//
//	out, err := nats.New(client, nats.DefaultConfig(), nats.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := out.Open(ctx); err != nil {
//	    return err
//	}
//	defer out.Close()
//
// The sink is used by a single writer goroutine; Push is serialized.
package nats
