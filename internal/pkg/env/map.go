// Package env provides access to environment variables, so they can be replaced in tests.
package env

import (
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/sasha-s/go-deadlock"
)

// Provider looks up an ENV variable.
type Provider interface {
	Lookup(key string) (string, bool)
}

// Map of ENV variables, keys are case-insensitive.
type Map struct {
	lock   *deadlock.RWMutex
	values map[string]string
}

func Empty() *Map {
	return &Map{lock: &deadlock.RWMutex{}, values: make(map[string]string)}
}

func FromMap(values map[string]string) *Map {
	m := Empty()
	for k, v := range values {
		m.values[strings.ToUpper(k)] = v
	}
	return m
}

func FromOs() *Map {
	m := Empty()
	for _, pair := range os.Environ() {
		if k, v, ok := strings.Cut(pair, "="); ok {
			m.values[strings.ToUpper(k)] = v
		}
	}
	return m
}

func (m *Map) Lookup(key string) (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[strings.ToUpper(key)]
	return v, ok
}

func (m *Map) Get(key string) string {
	v, _ := m.Lookup(key)
	return v
}

func (m *Map) Set(key, value string) {
	m.lock.Lock()
	m.values[strings.ToUpper(key)] = value
	m.lock.Unlock()
}

// Keys returns sorted uppercase keys.
func (m *Map) Keys() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return slices.Sorted(maps.Keys(m.values))
}

func (m *Map) ToMap() map[string]string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return maps.Clone(m.values)
}

// Merge copies values from the other map, existing keys are kept unless overwrite is set.
func (m *Map) Merge(other *Map, overwrite bool) {
	values := other.ToMap()
	m.lock.Lock()
	defer m.lock.Unlock()
	for k, v := range values {
		if _, found := m.values[k]; found && !overwrite {
			continue
		}
		m.values[k] = v
	}
}
