// Package tcp provides the push side of the coded-message protocol: a TCP
// listener that serves framed messages to one peer at a time.
//
// # Overview
//
// Listen binds the address, retrying while it is in use. The first Push
// blocks until a peer connects; later pushes write to that peer until it
// goes away, after which the next Push accepts again. Delivery is
// single-producer, single-consumer.
//
// # Liveness
//
// A background check periodically inspects the connection without
// consuming data (MSG_PEEK on Linux and macOS, a short deadline read
// elsewhere). It takes the connection lock with a bounded try-lock so a
// slow write is never stalled by the check. A peer that has closed or
// reset its side is disconnected and the next Push re-accepts.
//
// # Errors
//
// A failed write closes the peer and returns an error matching
// errors.ErrTransport; the frame is not retried. Callers count it as
// dropped and push the next message, which waits for a new peer.
package tcp
