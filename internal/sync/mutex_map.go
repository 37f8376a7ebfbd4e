package sync

import "sync"

// RWMutexMap is a map guarded by a sync.RWMutex. The zero value is ready to
// use. Link drivers keep their event handler registrations in one: the owner
// registers handlers while the dispatch goroutine reads them.
type RWMutexMap[K comparable, V any] struct {
	mu sync.RWMutex
	mp map[K]V
}

// Set stores v under k, allocating the backing map on first use.
func (m *RWMutexMap[K, V]) Set(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mp == nil {
		m.mp = make(map[K]V)
	}
	m.mp[k] = v
}

// Get returns the value stored under k and whether it was present.
func (m *RWMutexMap[K, V]) Get(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.mp[k]
	return v, ok
}

// Del removes k, reporting whether it was present.
func (m *RWMutexMap[K, V]) Del(k K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.mp[k]; !ok {
		return false
	}
	delete(m.mp, k)
	return true
}

func (m *RWMutexMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.mp)
}

// Values returns a snapshot of the stored values in no particular order. The
// lock is released before returning, so callers may invoke the values and
// modify the map from inside them.
func (m *RWMutexMap[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]V, 0, len(m.mp))
	for _, v := range m.mp {
		values = append(values, v)
	}
	return values
}

// Clear drops every entry.
func (m *RWMutexMap[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mp = nil
}
