// Package sim is a synthetic Kinect: it produces every modality at the
// configured rates so the capture pipeline can run without hardware.
//
// Each modality is paced independently. Pulling before the next unit is due
// returns device.ErrDeviceNotReady, as the real sensor does when it has no
// new frame.
package sim
