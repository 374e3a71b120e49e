// Package worker runs a fixed number of goroutines that repeat a step
// function until told to stop.
//
// Each pipeline stage (acquisition, compression, writing) is a Pool. The
// step does one unit of work: pull one frame, encode one message, write one
// frame. Errors returned by a step are counted and reported through the
// error handler and the worker carries on; returning ErrDone ends that
// worker cleanly.
//
// Two ways to end a pool:
//
//   - Stop sets the stop flag, cancels the context handed to steps, and
//     joins. Used for stages with no input to drain.
//   - Wait joins without flagging. Used after closing the stage's input
//     queue so every worker drains it and returns ErrDone.
//
// Both return ErrStopTimeout if the workers have not exited in time.
//
// Statistics are always tracked with atomics; Prometheus metrics are
// reported through WithMetrics.
package worker
