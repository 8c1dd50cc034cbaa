package pcmsound

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per error kind. Match them with errors.Is.
var (
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrSetupRequired    = errors.New("must call setup first")
	ErrDevice           = errors.New("audio device error")
	ErrFocus            = errors.New("could not get audio focus")
	ErrOperation        = errors.New("unexpected operation failure")

	// ErrNotImplemented is returned by Invoke for unknown methods.
	ErrNotImplemented = errors.New("method not implemented")
	// ErrDeviceUnavailable is returned by backends that cannot run on this build.
	ErrDeviceUnavailable = errors.New("audio backend not available")
	// ErrDeviceClosed is returned when writing to a released device.
	ErrDeviceClosed = errors.New("audio device is closed")
)

// ErrorKind classifies failures reported by the public operations.
type ErrorKind int

const (
	// KindInvalidArguments covers malformed or missing caller input.
	KindInvalidArguments ErrorKind = iota
	// KindSetupRequired means an operation needs a live session.
	KindSetupRequired
	// KindDevice means the output device could not be sized, opened or started.
	KindDevice
	// KindFocus means output focus was declined.
	KindFocus
	// KindOperation wraps anything unexpected, including panics.
	KindOperation
)

// String returns the human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArguments:
		return "invalid arguments"
	case KindSetupRequired:
		return "setup required"
	case KindDevice:
		return "device error"
	case KindFocus:
		return "focus error"
	case KindOperation:
		return "operation error"
	default:
		return "unknown"
	}
}

// Code returns the stable identifier reported to hosts.
func (k ErrorKind) Code() string {
	switch k {
	case KindInvalidArguments:
		return "InvalidArguments"
	case KindSetupRequired:
		return "SetupRequired"
	case KindDevice:
		return "DeviceError"
	case KindFocus:
		return "FocusError"
	default:
		return "OperationError"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidArguments:
		return ErrInvalidArguments
	case KindSetupRequired:
		return ErrSetupRequired
	case KindDevice:
		return ErrDevice
	case KindFocus:
		return ErrFocus
	default:
		return ErrOperation
	}
}

// Error is the error type returned by Engine and Controller operations.
type Error struct {
	Kind    ErrorKind              // Classification of the failure
	Op      string                 // Operation that failed, e.g. "setup"
	Err     error                  // Underlying cause, may be nil
	Stack   string                 // Diagnostic trace for KindOperation
	Context map[string]interface{} // Additional context
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("pcmsound")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Code returns the stable identifier of the error kind.
func (e *Error) Code() string {
	return e.Kind.Code()
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalidArgs(op, format string, args ...interface{}) *Error {
	return newError(KindInvalidArguments, op, fmt.Errorf(format, args...))
}

// KindOf reports the kind of err. Errors that did not come from this
// package are reported as KindOperation.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOperation
}
