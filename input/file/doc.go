// Package file provides a protocol.Source that replays a persisted stream.
//
// The input scans frames from byte 0 with a resynchronizing protocol.Reader,
// so a stream with a damaged region still yields every intact frame after
// it. Pull returns io.EOF once the file is exhausted.
package file
