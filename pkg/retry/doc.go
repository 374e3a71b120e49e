// Package retry runs an operation until it succeeds or gives up.
//
// Three shapes are used in kinect-bridge2:
//
//   - Quick: binding a listener or dialing a peer at startup
//   - Persistent: re-dialing a capture server that may come and go
//   - Fixed: polling a device channel that reports "not ready"
//
// Example:
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//		conn, err = net.Dial("tcp", addr)
//		return err
//	})
//
// Wrap an error with NonRetryable, or set Config.Retryable, to stop early.
package retry
