// Package message defines the self-describing binary message model used on
// the capture wire.
//
// Every message has a header and a payload that pack and unpack
// independently, in network byte order, through Writer and Reader. Kinds are
// identified by an enumerated TypeID and registered with a Registry, which
// also accepts the MD5-derived IDs older peers used (LegacyID).
//
// Building blocks:
//
//   - Binary: raw bytes with owned/borrowed storage
//   - TimeStamp, Sequence, Checksum, Image, Audio: builtin kinds
//   - Composite: fixed, ordered components of a larger kind
//   - Vector, Array: homogeneous sequences (Array packs one shared header)
//   - Envelope: a payload of any registered kind behind its type ID
//   - Coded: the output of a codec, which is what travels in a frame
//
// Marshal validates a message before packing it; a message implementing
// Validator can refuse to be packed.
package message
