// Package file provides a protocol.Sink that persists framed coded messages.
//
// # Overview
//
// The output writes every pushed message as one frame ('<', length u32 LE,
// '>', body) through a buffered writer. The file carries no header, so a
// persisted stream can be replayed with input/file or concatenated with
// another stream.
//
// # Configuration
//
//   - Path: file to write; parent directories are created
//   - Append: append to an existing file instead of truncating it
//   - BufferSize: size of the write buffer (default 1 MiB)
//   - FlushInterval: how often buffered frames are flushed (default 1s, 0 disables)
//
// # Usage
//
//	out, err := file.New(file.Config{Path: "session.stream"}, file.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer out.Close()
//
//	if err := out.Push(ctx, coded); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// Push, Flush and Close may be called from different goroutines; frames are
// written in the order Push is called.
package file
