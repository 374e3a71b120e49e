// Package websocket provides a protocol.Source that reads framed coded
// messages from a WebSocket endpoint served by output/websocket.
//
// Every binary message carries one frame. Text and control messages are
// ignored. A message that does not hold a well-formed frame is reported as
// errors.ErrProtocol and the stream continues; a lost connection is
// reported as errors.ErrTransport and the next Pull dials again.
package websocket
