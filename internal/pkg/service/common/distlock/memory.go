package distlock

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Locker, one instance is shared by all nodes of a simulated cluster.
type MemoryProvider struct {
	lock  *sync.Mutex
	locks map[string]*memoryLock
}

type memoryLock struct {
	holder   *memoryMutex
	released chan struct{}
}

type memoryMutex struct {
	provider *MemoryProvider
	name     string
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{lock: &sync.Mutex{}, locks: make(map[string]*memoryLock)}
}

func (p *MemoryProvider) NewMutex(name string) Mutex {
	return &memoryMutex{provider: p, name: name}
}

// state must be called with the provider lock held.
func (p *MemoryProvider) state(name string) *memoryLock {
	l, ok := p.locks[name]
	if !ok {
		l = &memoryLock{released: make(chan struct{})}
		p.locks[name] = l
	}
	return l
}

func (m *memoryMutex) Name() string {
	return m.name
}

func (m *memoryMutex) Lock(ctx context.Context) error {
	_, err := m.acquire(ctx, nil)
	return err
}

func (m *memoryMutex) TryLock(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return m.acquire(ctx, timer.C)
}

func (m *memoryMutex) acquire(ctx context.Context, timeoutCh <-chan time.Time) (bool, error) {
	for {
		m.provider.lock.Lock()
		l := m.provider.state(m.name)
		if l.holder == nil {
			l.holder = m
			m.provider.lock.Unlock()
			return true, nil
		}
		released := l.released
		m.provider.lock.Unlock()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timeoutCh:
			return false, nil
		case <-released:
		}
	}
}

func (m *memoryMutex) Unlock(_ context.Context) error {
	m.provider.lock.Lock()
	defer m.provider.lock.Unlock()
	l := m.provider.state(m.name)
	if l.holder != m {
		return NotLockedError{name: m.name}
	}
	l.release()
	return nil
}

func (m *memoryMutex) ForceUnlock(_ context.Context) error {
	m.provider.lock.Lock()
	defer m.provider.lock.Unlock()
	if l := m.provider.state(m.name); l.holder != nil {
		l.release()
	}
	return nil
}

func (m *memoryMutex) IsLocked() bool {
	m.provider.lock.Lock()
	defer m.provider.lock.Unlock()
	return m.provider.state(m.name).holder == m
}

func (l *memoryLock) release() {
	l.holder = nil
	close(l.released)
	l.released = make(chan struct{})
}
