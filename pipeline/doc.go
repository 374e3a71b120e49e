// Package pipeline runs the capture engine: per-modality acquisition
// workers feed bounded queues, compression pools turn raw messages into
// coded messages on a shared output queue, and a single writer pushes
// them to a protocol.Sink.
//
// Queues are soft-bounded. A producer that finds its queue at the
// high-water mark waits one pause and, if the queue is still at the mark,
// skips the iteration. Consumers wait at most one pause on an empty queue.
// Nobody blocks indefinitely, so every loop observes its stop flag.
//
// Start brings stages up writer first, then compression, then acquisition.
// Stop takes them down in the reverse direction:
//
//  1. stop and join every acquisition worker;
//  2. close every modality queue and join the compression pools once
//     they have drained it;
//  3. close the output queue and join the writer once it has drained;
//  4. flush and close the sink.
//
// The pools of a phase are joined concurrently. A pool that overruns the
// join timeout falls back to flagging and cancelling; messages left behind
// are counted as dropped.
//
//	p, err := pipeline.New(pipeline.DefaultConfig(), sink, modalities,
//		pipeline.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	return p.Run(ctx)
package pipeline
