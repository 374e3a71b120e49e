// Package protocol frames coded messages on a byte stream and recovers them
// on the other side.
//
// A frame is
//
//	'<'  u8
//	len  u32 little-endian, size of body
//	'>'  u8
//	body message.Coded layout (network byte order)
//
// Reader reads frames from any io.Reader. When the prefix is not a valid
// marker pair with a plausible length it scans forward for the next one,
// counting skipped bytes and resynchronizations. A body that does not parse
// as a coded message is reported as ErrProtocol for that frame only; the
// reader stays aligned on the next frame.
//
// Sink and Source are the contracts every transport (file, TCP, WebSocket,
// NATS) implements.
package protocol
