package kvstore

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is an in-process map storage shared by all nodes of a simulated cluster.
type MemoryStore struct {
	lock *sync.RWMutex
	data map[string]map[string]Value
}

type memoryMap struct {
	store    *MemoryStore
	keyspace string
	owner    Ownership
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lock: &sync.RWMutex{}, data: make(map[string]map[string]Value)}
}

// Map returns the keyspace as seen by a node with the ownership.
func (s *MemoryStore) Map(keyspace string, owner Ownership) (Map, error) {
	if err := validateKeyspace(keyspace); err != nil {
		return nil, err
	}
	return &memoryMap{store: s, keyspace: keyspace, owner: owner}, nil
}

func (m *memoryMap) Keyspace() string {
	return m.keyspace
}

func (m *memoryMap) Get(_ context.Context, key string) (Value, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	m.store.lock.RLock()
	defer m.store.lock.RUnlock()
	v, found := m.store.data[m.keyspace][key]
	return slices.Clone(v), found, nil
}

func (m *memoryMap) Put(_ context.Context, key string, value Value) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.store.lock.Lock()
	defer m.store.lock.Unlock()
	if m.store.data[m.keyspace] == nil {
		m.store.data[m.keyspace] = make(map[string]Value)
	}
	m.store.data[m.keyspace][key] = slices.Clone(value)
	return nil
}

func (m *memoryMap) Contains(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	m.store.lock.RLock()
	defer m.store.lock.RUnlock()
	_, found := m.store.data[m.keyspace][key]
	return found, nil
}

func (m *memoryMap) Remove(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	m.store.lock.Lock()
	defer m.store.lock.Unlock()
	_, found := m.store.data[m.keyspace][key]
	delete(m.store.data[m.keyspace], key)
	return found, nil
}

func (m *memoryMap) Keys(_ context.Context) ([]string, error) {
	m.store.lock.RLock()
	defer m.store.lock.RUnlock()
	return slices.Sorted(maps.Keys(m.store.data[m.keyspace])), nil
}

func (m *memoryMap) LocalKeySet(ctx context.Context) ([]string, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return localKeys(keys, m.owner), nil
}

func (m *memoryMap) Size(_ context.Context) (int, error) {
	m.store.lock.RLock()
	defer m.store.lock.RUnlock()
	return len(m.store.data[m.keyspace]), nil
}
