// Package capture turns a device.Device into the pipeline's modality
// table.
//
// Color frames arrive as RGBA and leave as cropped RGB. Audio blocks are
// merged until a message holds at least 2048 samples. Depth, infrared,
// bodies and speech pass through unchanged.
package capture
