package chunk

import (
	"fmt"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

var errIsDir = errors.New("the path is a directory") // nolint: gochecknoglobals

// ProtocolViolationError is returned if a chunk doesn't match the transfer, the transfer cannot continue.
type ProtocolViolationError struct {
	message string
}

// IOFailureError wraps a read or write error of the file.
type IOFailureError struct {
	Op   string
	Path string
	err  error
}

func NewProtocolViolationError(format string, a ...any) ProtocolViolationError {
	return ProtocolViolationError{message: fmt.Sprintf(format, a...)}
}

func (e ProtocolViolationError) Error() string {
	return "protocol violation: " + e.message
}

func newIOFailure(op, path string, err error) IOFailureError {
	return IOFailureError{Op: op, Path: path, err: err}
}

func (e IOFailureError) Error() string {
	return fmt.Sprintf(`cannot %s "%s": %s`, e.Op, e.Path, e.err)
}

func (e IOFailureError) Unwrap() error {
	return e.err
}

func IsProtocolViolation(err error) bool {
	var violation ProtocolViolationError
	return errors.As(err, &violation)
}

func IsIOFailure(err error) bool {
	var ioErr IOFailureError
	return errors.As(err, &ioErr)
}
