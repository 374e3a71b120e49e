// Package errors provides the error taxonomy shared by the capture pipeline,
// the codecs and the transports. Errors are classified as transient (retry),
// invalid (drop the unit of work and continue) or fatal (stop the component).
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Capture taxonomy. Every stage loop catches these and keeps running.
var (
	// ErrTransport is a connection-level I/O failure; recovered by re-accepting or re-dialing.
	ErrTransport = errors.New("transport failure")
	// ErrProtocol is a frame marker or length inconsistency; the reader resynchronizes.
	ErrProtocol = errors.New("protocol violation")
	// ErrDecode is codec-level corruption; the message is dropped.
	ErrDecode = errors.New("decode failed")
	// ErrEncode is raised by an encoder only when it cannot allocate its output.
	ErrEncode = errors.New("encode failed")
	// ErrLockUnavailable is returned by try-lock and timed waits.
	ErrLockUnavailable = errors.New("lock unavailable")
	// ErrDeviceNotReady is an acquisition transient; the caller retries after a fixed delay.
	ErrDeviceNotReady = errors.New("device not ready")
)

// Standard error variables for common conditions
var (
	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Connection errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Data errors
	ErrInvalidData    = errors.New("invalid data format")
	ErrChecksumFailed = errors.New("checksum validation failed")
	ErrUnknownType    = errors.New("unknown message type")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Resource errors
	ErrResourceExhausted = errors.New("resource exhausted")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrLockUnavailable) ||
		errors.Is(err, ErrDeviceNotReady) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "broken pipe", "temporary", "unavailable"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrEncode) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrResourceExhausted)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrChecksumFailed) ||
		errors.Is(err, ErrUnknownType)
}

// Classify returns the error class for an error.
// Fatal and invalid are checked before transient so that an explicitly
// classified wrapper wins over message pattern matching.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Unknown errors default to transient so that stage loops keep going
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Transport marks err as a transport failure of the given component.
// The result matches both ErrTransport and err under errors.Is.
func Transport(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapTransient(join(ErrTransport, err), component, method, action)
}

// Protocol marks err as a framing violation.
func Protocol(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapInvalid(join(ErrProtocol, err), component, method, action)
}

// Decode marks err as codec corruption.
func Decode(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapInvalid(join(ErrDecode, err), component, method, action)
}

func join(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Is is a re-export of the standard library errors.Is so callers need only one import
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a re-export of the standard library errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join is a re-export of the standard library errors.Join
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// New is a re-export of the standard library errors.New
func New(text string) error {
	return errors.New(text)
}
