// Package tcp provides the pull side of the coded-message protocol: a TCP
// client that dials the capture server and yields the coded messages it
// streams.
//
// The connection is opened lazily and re-dialed after it is lost. A frame
// whose body does not parse is reported as errors.ErrProtocol and the
// stream continues with the next frame; end of stream or an I/O failure is
// reported as errors.ErrTransport and the next Pull dials again.
//
// Close performs a half-close handshake: the write side is shut down, the
// remaining inbound bytes are drained and discarded until the server hangs
// up or the drain deadline passes, then the socket is closed.
package tcp
