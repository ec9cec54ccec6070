// Package latch provides a countdown barrier with a deadline.
package latch

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// ErrTimeout is returned by Wait, if the count has not reached zero in time.
var ErrTimeout = errors.New("latch wait timeout") // nolint: gochecknoglobals

// Latch is released when the count reaches zero.
type Latch struct {
	clock   clock.Clock
	lock    *sync.Mutex
	count   int
	initial int
	done    chan struct{}
}

func New(clk clock.Clock, count int) *Latch {
	if count < 0 {
		count = 0
	}
	l := &Latch{clock: clk, lock: &sync.Mutex{}, count: count, initial: count, done: make(chan struct{})}
	if count == 0 {
		close(l.done)
	}
	return l
}

// CountDown decrements the count, extra calls after the release are ignored.
func (l *Latch) CountDown() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.count == 0 {
		return
	}
	l.count--
	if l.count == 0 {
		close(l.done)
	}
}

// Count returns the remaining count.
func (l *Latch) Count() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.count
}

// Initial returns the count the latch was created with.
func (l *Latch) Initial() int {
	return l.initial
}

// Done is closed when the count reaches zero.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the count reaches zero, the timeout elapses, or the context ends.
func (l *Latch) Wait(ctx context.Context, timeout time.Duration) error {
	// Fast path, the timer is not needed
	select {
	case <-l.done:
		return nil
	default:
	}

	timer := l.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return nil
	case <-timer.C:
		// Released at the same moment as the timeout
		select {
		case <-l.done:
			return nil
		default:
			return ErrTimeout
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
