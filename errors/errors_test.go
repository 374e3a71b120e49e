package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"transport", ErrTransport, true},
		{"lock unavailable", ErrLockUnavailable, true},
		{"device not ready", ErrDeviceNotReady, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"protocol", ErrProtocol, false},
		{"decode", ErrDecode, false},
		{"encode", ErrEncode, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"broken pipe in message", fmt.Errorf("write: broken pipe"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("timeout")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"encode", ErrEncode, true},
		{"invalid config", ErrInvalidConfig, true},
		{"resource exhausted", ErrResourceExhausted, true},
		{"transport", ErrTransport, false},
		{"decode", ErrDecode, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsFatal(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"protocol", ErrProtocol, true},
		{"decode", ErrDecode, true},
		{"unknown type", ErrUnknownType, true},
		{"checksum", ErrChecksumFailed, true},
		{"transport", ErrTransport, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsInvalid(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"transport helper", Transport(io.EOF, "Input", "Pull", "read frame"), ErrorTransient},
		{"protocol helper", Protocol(fmt.Errorf("bad length"), "Reader", "Read", "parse body"), ErrorInvalid},
		{"decode helper", Decode(fmt.Errorf("truncated"), "Gzip", "Decode", "inflate"), ErrorInvalid},
		{"fatal wrap", WrapFatal(ErrEncode, "Gzip", "Encode", "deflate"), ErrorFatal},
		{"plain decode", ErrDecode, ErrorInvalid},
		{"plain encode", ErrEncode, ErrorFatal},
		{"unknown", fmt.Errorf("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := Classify(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestTaxonomyHelpers_PreserveChain(t *testing.T) {
	err := Transport(io.ErrUnexpectedEOF, "Input", "Pull", "read frame")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport in chain: %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF in chain: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Input.Pull: read frame failed:") {
		t.Errorf("unexpected message format: %s", err.Error())
	}

	// Wrapping an error that already carries the sentinel does not duplicate it
	again := Decode(Decode(fmt.Errorf("x"), "A", "B", "c"), "D", "E", "f")
	if strings.Count(again.Error(), ErrDecode.Error()) != 1 {
		t.Errorf("sentinel duplicated: %s", again.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "c", "m", "a") != nil {
		t.Error("expected nil for nil error")
	}
	if WrapTransient(nil, "c", "m", "a") != nil {
		t.Error("expected nil for nil error")
	}

	base := fmt.Errorf("boom")
	wrapped := Wrap(base, "Output", "Push", "write frame")
	if wrapped.Error() != "Output.Push: write frame failed: boom" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("expected wrapped error to match base")
	}

	var ce *ClassifiedError
	if !errors.As(WrapInvalid(base, "Output", "Push", "write frame"), &ce) {
		t.Fatal("expected ClassifiedError")
	}
	if ce.Component != "Output" || ce.Operation != "Push" {
		t.Errorf("unexpected context: %+v", ce)
	}
}
