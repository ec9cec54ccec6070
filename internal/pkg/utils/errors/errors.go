// Package errors extends the standard errors package with stack traces,
// multi errors and nested (prefixed) errors, formatted as human-readable bullet lists.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

const stackDepth = 32

// StackTrace contains program counters of the error origin.
type StackTrace []uintptr

type stackTracer interface {
	StackTrace() StackTrace
}

type withStack struct {
	error
	trace StackTrace
}

type wrappedError struct {
	msg   string
	err   error
	trace StackTrace
}

// New creates an error with a stack trace.
func New(msg string) error {
	return &withStack{error: errors.New(msg), trace: callers()} // nolint: forbidigo
}

// Errorf creates a formatted error with a stack trace, "%w" verb is supported.
func Errorf(format string, a ...any) error {
	return &withStack{error: fmt.Errorf(format, a...), trace: callers()} // nolint: forbidigo
}

// WithStack adds stack trace to an existing error.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &withStack{error: err, trace: callers()}
}

// Wrap replaces the message of the error, the original error is still accessible by Unwrap, Is and As.
func Wrap(err error, msg string) error {
	return &wrappedError{msg: msg, err: err, trace: callers()}
}

// Wrapf replaces the message of the error by a formatted message.
func Wrapf(err error, format string, a ...any) error {
	return &wrappedError{msg: fmt.Sprintf(format, a...), err: err, trace: callers()}
}

func Is(err, target error) bool {
	return errors.Is(err, target) // nolint: forbidigo
}

func As(err error, target any) bool {
	return errors.As(err, target) // nolint: forbidigo
}

func Unwrap(err error) error {
	return errors.Unwrap(err) // nolint: forbidigo
}

func (e *withStack) Unwrap() error {
	return e.error
}

func (e *withStack) StackTrace() StackTrace {
	return e.trace
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

func (e *wrappedError) StackTrace() StackTrace {
	return e.trace
}

func callers() StackTrace {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

func runtimeFrames(trace StackTrace) string {
	frame, _ := runtime.CallersFrames(trace).Next()
	return fmt.Sprintf("%s:%d", frame.File, frame.Line)
}
