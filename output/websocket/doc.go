// Package websocket provides a protocol.Sink that serves framed coded
// messages to a single WebSocket peer.
//
// # Overview
//
// Start binds an HTTP endpoint (default path /stream). One peer is attached
// at a time; a second upgrade request is refused with 409 Conflict while a
// peer is connected. Every pushed message is sent as one binary WebSocket
// message holding exactly one frame, so a reader can parse it with
// protocol.ParseFrame or concatenate messages into a byte stream.
//
// # Peer Lifecycle
//
// The first Push waits until a peer is attached. A reader goroutine per
// peer consumes control frames and detects peer loss; a ping loop keeps
// idle connections open through proxies. When the peer goes away the next
// Push waits for a new one.
//
// # Example
//
//	out, err := websocket.New(websocket.Config{Address: ":9001"})
//	if err != nil {
//	    return err
//	}
//	if err := out.Start(ctx); err != nil {
//	    return err
//	}
//	defer out.Close()
//
// The gorilla/websocket connection allows one concurrent writer; Push is
// serialized with the guarded peer state and pings use WriteControl.
package websocket
