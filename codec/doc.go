// Package codec turns packed messages into coded messages and back.
//
// A Codec is identified by a 32-bit encoding ID carried in every
// message.Coded header:
//
//	0x0101  binary  byte-order mark followed by the packed bytes
//	0x0102  gzip    gzip stream, level configurable
//	0x0103  zstd    zstandard frame
//
// Codecs are stateless with respect to messages and safe for concurrent
// use. A Set resolves a codec from an encoding ID (or the legacy alias an
// older peer sent); a Coder combines a Set, a message registry and the
// codec a stage encodes with.
package codec
