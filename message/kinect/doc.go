// Package kinect defines the message kinds produced by a Kinect-class
// device: color, depth and infrared frames, beam-formed audio, tracked
// bodies and recognized speech. Every kind ends with a capture TimeStamp.
//
// Importing the package registers its kinds with message.Default().
package kinect
