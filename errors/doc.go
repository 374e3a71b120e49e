// Package errors provides the error taxonomy used across kinect-bridge2.
//
// # Classes
//
// Every error is handled according to its class:
//
//   - ErrorTransient: retry (re-dial, re-accept, wait for the device)
//   - ErrorInvalid: drop the unit of work and continue (bad frame, corrupt payload)
//   - ErrorFatal: stop the component (encoder allocation failure, bad configuration)
//
// # Capture taxonomy
//
//	ErrTransport        transient  connection-level I/O failure
//	ErrProtocol         invalid    frame marker not found or length inconsistent
//	ErrDecode           invalid    codec-level corruption
//	ErrEncode           fatal      encoder allocation failure
//	ErrLockUnavailable  transient  try-lock or timed wait gave up
//	ErrDeviceNotReady   transient  acquisition returned no data yet
//
// # Wrapping
//
// Errors are wrapped with component and operation context:
//
//	return errors.WrapTransient(err, "Output", "Push", "write frame")
//	// Output.Push: write frame failed: <err>
//
// Transport, Protocol and Decode attach the matching sentinel so that both
// errors.Is(err, ErrTransport) and errors.Is(err, cause) hold.
package errors
