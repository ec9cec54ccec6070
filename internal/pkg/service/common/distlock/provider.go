package distlock

import (
	"context"
	"sync"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const keyPrefix = "runtime/lock"

// Provider creates etcd mutexes.
type Provider struct {
	logger log.Logger
	client *etcd.Client
	prefix etcdop.Prefix

	sessionLock *sync.RWMutex
	session     *concurrency.Session

	// local prevents acquiring the same lock twice by one node, etcd locks are reentrant within a session
	localLock *sync.Mutex
	local     map[string]chan struct{}
}

type dependencies interface {
	Logger() log.Logger
	Process() *servicectx.Process
	EtcdClient() *etcd.Client
}

func NewProvider(ctx context.Context, cfg Config, d dependencies) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		logger:      d.Logger().WithComponent("distribution.mutex.provider"),
		client:      d.EtcdClient(),
		prefix:      etcdop.NewPrefix(keyPrefix),
		sessionLock: &sync.RWMutex{},
		localLock:   &sync.Mutex{},
		local:       make(map[string]chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	wg := &sync.WaitGroup{}
	d.Process().OnShutdown(func(ctx context.Context) {
		p.logger.Info(ctx, "received shutdown request")
		cancel()
		wg.Wait()
		p.logger.Info(ctx, "shutdown done")
	})

	errCh := etcdop.ResistantSession(ctx, wg, p.logger, p.client, cfg.TTLSeconds, func(session *concurrency.Session) error {
		p.sessionLock.Lock()
		p.session = session
		p.sessionLock.Unlock()
		return nil
	})
	if err := <-errCh; err != nil {
		cancel()
		return nil, err
	}

	return p, nil
}

func (p *Provider) NewMutex(name string) Mutex {
	return &etcdMutex{provider: p, name: name, lock: &sync.Mutex{}}
}

func (p *Provider) currentSession() (*concurrency.Session, error) {
	p.sessionLock.RLock()
	defer p.sessionLock.RUnlock()
	if p.session == nil {
		return nil, errors.New("etcd session is not available")
	}
	select {
	case <-p.session.Done():
		return nil, errors.New("etcd session expired")
	default:
		return p.session, nil
	}
}

func (p *Provider) localChannel(name string) chan struct{} {
	p.localLock.Lock()
	defer p.localLock.Unlock()
	ch, ok := p.local[name]
	if !ok {
		ch = make(chan struct{}, 1)
		p.local[name] = ch
	}
	return ch
}

type etcdMutex struct {
	provider *Provider
	name     string
	lock     *sync.Mutex
	mtx      *concurrency.Mutex
}

func (m *etcdMutex) Name() string {
	return m.name
}

func (m *etcdMutex) Lock(ctx context.Context) error {
	return m.lockWithDeadline(ctx)
}

func (m *etcdMutex) TryLock(ctx context.Context, timeout time.Duration) (bool, error) {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.lockWithDeadline(lockCtx)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (m *etcdMutex) lockWithDeadline(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.mtx != nil {
		return errors.Errorf(`lock "%s" is already held`, m.name)
	}

	// Local lock first
	local := m.provider.localChannel(m.name)
	select {
	case local <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	session, err := m.provider.currentSession()
	if err != nil {
		<-local
		return err
	}

	mtx := concurrency.NewMutex(session, m.provider.prefix.Key(m.name).Key())
	if err := mtx.Lock(ctx); err != nil {
		<-local
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.PrefixErrorf(err, `cannot acquire lock "%s"`, m.name)
	}

	m.mtx = mtx
	return nil
}

func (m *etcdMutex) Unlock(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.mtx == nil {
		return NotLockedError{name: m.name}
	}

	err := m.mtx.Unlock(ctx)
	m.release()
	if err != nil {
		return errors.PrefixErrorf(err, `cannot release lock "%s"`, m.name)
	}
	return nil
}

func (m *etcdMutex) ForceUnlock(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, err := m.provider.prefix.Add(m.name).DeleteAll(ctx, m.provider.client); err != nil {
		return errors.PrefixErrorf(err, `cannot force release lock "%s"`, m.name)
	}

	m.release()
	return nil
}

func (m *etcdMutex) IsLocked() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.mtx != nil
}

// release frees the local slot, only if this instance holds it.
func (m *etcdMutex) release() {
	if m.mtx == nil {
		return
	}
	m.mtx = nil
	<-m.provider.localChannel(m.name)
}
