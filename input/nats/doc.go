// Package nats provides a protocol.Source that replays one capture session
// from a NATS JetStream stream.
//
// The session is looked up in the session bucket written by output/nats;
// an empty Config.Session selects the latest one. Frames are read with an
// ordered consumer in batches of FetchBatch. Each JetStream message holds
// exactly one frame, so a malformed message costs only that frame
// (ErrProtocol). Once the publisher has closed the session and all of its
// recorded frames were pulled, Pull returns io.EOF.
package nats
