package worker

import "errors"

// Sentinel errors for worker pool operations
var (
	// ErrPoolAlreadyStarted indicates Start() was called on an already-started pool
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrNilStep indicates a nil step function was provided
	ErrNilStep = errors.New("step function cannot be nil")

	// ErrStopTimeout indicates the pool didn't stop within the timeout
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")

	// ErrDone is returned by a step to end its worker without counting a failure.
	ErrDone = errors.New("worker done")
)
