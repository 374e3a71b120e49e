package protocol

import (
	"context"
	"time"

	"github.com/usc-rasc/kinect-bridge2/message"
)

// Sink consumes coded messages in order. Implementations are used by a
// single writer goroutine.
type Sink interface {
	// Push frames and sends c. It may block until a peer is available.
	// A failed delivery returns an error matching errors.ErrTransport.
	Push(ctx context.Context, c *message.Coded) error
	Flush() error
	Close() error
}

// Source produces coded messages in order.
type Source interface {
	// Pull returns the next message. io.EOF marks a clean end of stream;
	// ErrProtocol marks one bad frame after which the caller may continue;
	// ErrTransport means the underlying connection is gone.
	Pull(ctx context.Context) (*message.Coded, error)
	Close() error
}

// Deadliner is a connection whose blocked reads can be interrupted.
type Deadliner interface {
	SetReadDeadline(t time.Time) error
}

// InterruptRead makes a blocked read on conn return once ctx is done. The
// returned release must be called when the read is over; it clears the
// deadline again if ctx ended after the read had already completed.
func InterruptRead(ctx context.Context, conn Deadliner) (release func()) {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
		close(fired)
	})
	return func() {
		if !stop() {
			<-fired
			_ = conn.SetReadDeadline(time.Time{})
		}
	}
}
