package distributor

import (
	"fmt"
	"time"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// BusyError is returned if another distribution is running, the caller may retry later.
type BusyError struct {
	LockName string
	Timeout  time.Duration
}

// AnnounceTimeoutError is returned if some nodes didn't acknowledge the announcement, no chunk has been sent.
type AnnounceTimeoutError struct {
	TransferID string
	Expected   int
	Received   int
	Timeout    time.Duration
}

// InterruptedError is returned if the distribution has been cancelled, the lock is released.
type InterruptedError struct {
	Phase Phase
	err   error
}

func (e BusyError) Error() string {
	return fmt.Sprintf(`another file distribution is running: the lock "%s" was not acquired within %s`, e.LockName, e.Timeout)
}

func (e AnnounceTimeoutError) Error() string {
	return fmt.Sprintf(`transfer "%s": %d of %d nodes acknowledged the announcement within %s`, e.TransferID, e.Received, e.Expected, e.Timeout)
}

func (e InterruptedError) Error() string {
	return fmt.Sprintf(`file distribution interrupted in the phase "%s": %s`, e.Phase, e.err)
}

func (e InterruptedError) Unwrap() error {
	return e.err
}

// IsRecoverable returns true if the whole distribution can be retried later.
func IsRecoverable(err error) bool {
	var busy BusyError
	var timeout AnnounceTimeoutError
	var interrupted InterruptedError
	return errors.As(err, &busy) || errors.As(err, &timeout) || errors.As(err, &interrupted)
}

var errNoFreeWorker = errors.New("no free receiving worker") // nolint: gochecknoglobals
