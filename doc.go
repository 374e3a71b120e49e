// Package kinectbridge streams Kinect sensor data from a capture host to a
// remote consumer.
//
// The capture side (cmd/kinect-logger) acquires color, depth, infrared,
// audio, body and speech data from a device, packs each sample into a
// self-describing binary message, encodes it with a pluggable codec and
// frames it onto a byte stream. The consumer side (cmd/kinect-client) reads
// frames back, resynchronizing after garbage, and decodes them.
//
// # Layers
//
//   - message, message/kinect: binary message model and the Kinect kinds
//   - codec: binary, gzip and zstd encodings behind one Coder
//   - protocol: frame layout, resynchronizing reader, Sink and Source
//   - output/*, input/*: file, TCP, WebSocket and NATS JetStream transports
//   - pipeline, pkg/queue, pkg/worker, pkg/guard: bounded multi-stage
//     acquisition, compression and writing with ordered shutdown
//   - device, device/sim, capture: acquisition sources and per-modality
//     transforms
//   - config, metric, health, errors: the ambient stack
//
// # Data Flow
//
//	device --> acquire --> [queue per modality] --> compress --> [output queue] --> writer --> Sink
//	                                                                               |
//	Source --> protocol.Reader --> codec.Coder.DecodeAny --> message  <------------+ (wire)
package kinectbridge
