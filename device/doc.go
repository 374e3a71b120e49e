// Package device defines the acquisition collaborator the capture pipeline
// pulls from. Vendor SDK bindings implement Device; device/sim provides a
// synthetic implementation for tests and demonstrations.
//
// Every Source is non-blocking in spirit: when no new unit is ready it
// returns ErrDeviceNotReady and the acquisition loop sleeps for its retry
// delay, checking its stop flag between attempts.
package device
