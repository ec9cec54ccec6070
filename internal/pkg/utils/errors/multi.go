package errors

import (
	"fmt"
	"strings"
	"sync"
)

const (
	Indent = "  "
	Bullet = "- "
)

// MultiError collects multiple errors, it is safe for concurrent use.
type MultiError interface {
	error
	Len() int
	Unwrap() []error
	WrappedErrors() []error
	Append(errs ...error)
	AppendWithPrefix(err error, prefix string)
	AppendWithPrefixf(err error, format string, a ...any)
	ErrorOrNil() error
}

type multiError struct {
	lock   *sync.Mutex
	errors []error
}

type nestedError struct {
	main      error
	subErrors []error
}

func NewMultiError() MultiError {
	return &multiError{lock: &sync.Mutex{}}
}

func (e *multiError) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.errors)
}

func (e *multiError) Error() string {
	return Format(e)
}

func (e *multiError) Unwrap() []error {
	return e.WrappedErrors()
}

func (e *multiError) WrappedErrors() []error {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]error, len(e.errors))
	copy(out, e.errors)
	return out
}

func (e *multiError) Append(errs ...error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, err := range errs {
		if err == nil {
			continue
		}
		// Flatten multi errors
		if v, ok := err.(MultiError); ok { // nolint: errorlint
			e.errors = append(e.errors, v.WrappedErrors()...)
		} else {
			e.errors = append(e.errors, err)
		}
	}
}

func (e *multiError) AppendWithPrefix(err error, prefix string) {
	e.Append(PrefixError(err, prefix))
}

func (e *multiError) AppendWithPrefixf(err error, format string, a ...any) {
	e.Append(PrefixErrorf(err, format, a...))
}

// ErrorOrNil returns nil if there is no error, the only error if there is one error, or the MultiError itself.
func (e *multiError) ErrorOrNil() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	switch len(e.errors) {
	case 0:
		return nil
	case 1:
		return e.errors[0]
	default:
		return e
	}
}

// PrefixError creates an error with the prefix message, the original error is nested.
func PrefixError(err error, prefix string) error {
	return &nestedError{main: New(prefix), subErrors: []error{err}}
}

func PrefixErrorf(err error, format string, a ...any) error {
	return &nestedError{main: Errorf(format, a...), subErrors: []error{err}}
}

func (e *nestedError) Error() string {
	return Format(e)
}

func (e *nestedError) Unwrap() []error {
	return append([]error{e.main}, e.subErrors...)
}

// Format error as a bullet list.
func Format(err error) string {
	var out strings.Builder
	writeError(&out, 0, err)
	return out.String()
}

func writeError(out *strings.Builder, level int, err error) {
	switch v := err.(type) { // nolint: errorlint
	case *nestedError:
		out.WriteString(strings.TrimRight(v.main.Error(), ".,:"))
		out.WriteString(":")
		for _, sub := range v.subErrors {
			writeSubError(out, level+1, sub)
		}
	case *multiError:
		errs := v.WrappedErrors()
		if len(errs) == 1 {
			writeError(out, level, errs[0])
			return
		}
		for i, sub := range errs {
			if i > 0 || level > 0 {
				out.WriteString("\n")
			}
			out.WriteString(strings.Repeat(Indent, max(level-1, 0)))
			out.WriteString(Bullet)
			writeError(out, level+1, sub)
		}
	default:
		out.WriteString(err.Error())
	}
}

func writeSubError(out *strings.Builder, level int, err error) {
	if v, ok := err.(*multiError); ok && v.Len() > 1 { // nolint: errorlint
		writeError(out, level, v)
		return
	}
	out.WriteString("\n")
	out.WriteString(strings.Repeat(Indent, level-1))
	out.WriteString(Bullet)
	writeError(out, level, err)
}

// FormatWithStack appends source location of the error, if present.
func FormatWithStack(err error) string {
	var tracer stackTracer
	if As(err, &tracer) {
		if trace := tracer.StackTrace(); len(trace) > 0 {
			frames := runtimeFrames(trace)
			return fmt.Sprintf("%s [%s]", Format(err), frames)
		}
	}
	return Format(err)
}
