// Package servicectx provides unique ID for a service process and support for the graceful shutdown.
package servicectx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/keboola/go-cluster-filesync/internal/pkg/idgenerator"
	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const defaultShutdownTimeout = 30 * time.Second

type Process struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	wg       *sync.WaitGroup
	errCh    chan error
	uniqueID string

	shutdownTimeout time.Duration

	lock        *sync.Mutex
	terminating bool
	onShutdown  []OnShutdownFn
	shutdownWg  *sync.WaitGroup
}

type Option func(c *config)

// OnShutdownFn is invoked on graceful shutdown, the ctx is limited by the shutdown timeout.
type OnShutdownFn func(ctx context.Context)

type config struct {
	uniqueID        string
	shutdownTimeout time.Duration
	signals         bool
}

// WithUniqueID sets unique ID of the service process.
// By default, it is generated from the hostname and PID.
func WithUniqueID(v string) Option {
	return func(c *config) {
		c.uniqueID = v
	}
}

// WithShutdownTimeout limits the duration of all OnShutdown callbacks.
func WithShutdownTimeout(v time.Duration) Option {
	return func(c *config) {
		c.shutdownTimeout = v
	}
}

// WithoutSignals disables SIGINT/SIGTERM handling, it is used in tests.
func WithoutSignals() Option {
	return func(c *config) {
		c.signals = false
	}
}

func New(ctx context.Context, cancel context.CancelFunc, logger log.Logger, opts ...Option) (*Process, error) {
	c := config{shutdownTimeout: defaultShutdownTimeout, signals: true}
	for _, o := range opts {
		o(&c)
	}

	// Generate uniqueID if not set
	if c.uniqueID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		c.uniqueID = fmt.Sprintf(`%s-%05d`, hostname, os.Getpid())
	}

	// Create channel used by both the signal handler and service goroutines
	// to notify the main goroutine when to stop the server.
	errCh := make(chan error, 1)

	// Setup interrupt handler,
	// so SIGINT and SIGTERM signals cause the services to stop gracefully.
	if c.signals {
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				errCh <- errors.Errorf("%s", sig)
			case <-ctx.Done():
			}
		}()
	}

	proc := &Process{
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger,
		wg:              &sync.WaitGroup{},
		errCh:           errCh,
		uniqueID:        c.uniqueID,
		shutdownTimeout: c.shutdownTimeout,
		lock:            &sync.Mutex{},
		shutdownWg:      &sync.WaitGroup{},
	}

	logger.Infof(ctx, `process unique id "%s"`, proc.UniqueID())
	return proc, nil
}

// NewForTest creates a process, which is terminated on the test cleanup.
func NewForTest(t *testing.T, logger log.Logger) *Process {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	proc, err := New(ctx, cancel, logger, WithoutSignals(), WithUniqueID("test_"+idgenerator.Random(5)))
	if err != nil {
		t.Fatal(err)
		return nil
	}

	t.Cleanup(func() {
		proc.Shutdown(context.Background(), errors.New("test cleanup"))
		proc.WaitForShutdown()
	})

	return proc
}

// Ctx returns context of the Process.
func (v *Process) Ctx() context.Context {
	return v.ctx
}

// UniqueID returns unique process ID, by default it consists of hostname and PID.
func (v *Process) UniqueID() string {
	return v.uniqueID
}

// Shutdown triggers termination of the Process.
// Only the first call has effect, following calls are ignored.
func (v *Process) Shutdown(ctx context.Context, err error) {
	select {
	case v.errCh <- err:
	default:
		v.logger.Debugf(ctx, `shutdown already requested, ignored: %s`, err)
	}
}

// WaitForShutdown blocks until the Process is terminated and all OnShutdown callbacks are finished.
// It is safe to call the method multiple times, only the first call performs the shutdown.
func (v *Process) WaitForShutdown() {
	v.lock.Lock()
	if v.terminating {
		v.lock.Unlock()
		v.shutdownWg.Wait()
		return
	}
	v.terminating = true
	v.shutdownWg.Add(1)
	v.lock.Unlock()
	defer v.shutdownWg.Done()

	// Wait for signal
	v.logger.Infof(v.ctx, "exiting (%v)", <-v.errCh)

	// Iterate callbacks in reverse order, LIFO
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(v.ctx), v.shutdownTimeout)
	defer cancel()
	for i := len(v.onShutdown) - 1; i >= 0; i-- {
		v.onShutdown[i](shutdownCtx)
	}

	// Send cancellation signal to the goroutines and wait for all operations
	v.cancel()
	v.wg.Wait()

	v.logger.Info(v.ctx, "exited")
}

// Add an operation.
// The Process is graceful terminated when all operations are completed.
// The ctx parameter can be used to wait for the service termination.
// The errCh parameter can be used to stop the service with an error.
func (v *Process) Add(operation func(ctx context.Context, errCh chan<- error)) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		errCh := make(chan error, 1)
		go func() {
			if err := <-errCh; err != nil {
				v.Shutdown(v.ctx, err)
			}
		}()
		operation(v.ctx, errCh)
		close(errCh)
	}()
}

// OnShutdown registers a callback that is invoked when the process is terminating.
// Graceful shutdown waits until the callback has finished.
// Callbacks are invoked sequentially in LIFO order.
func (v *Process) OnShutdown(fn OnShutdownFn) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.terminating {
		v.logger.Errorf(v.ctx, `cannot register OnShutdown callback: the process is terminating`)
		return
	}
	v.onShutdown = append(v.onShutdown, fn)
}
