package sync

import "sync"

// Map is a generic map guarded by a RWMutex.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: make(map[K]V),
	}
}

func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// View exposes the locked map inside WithLock/WithRLock callbacks.
// It must not escape the callback.
type View[K comparable, V any] interface {
	Get(key K) (value V, ok bool)
	Set(key K, value V)
	Delete(key K)
	Clear()
	Range(f func(key K, value V) bool)
	Len() int
}

type mapView[K comparable, V any] struct {
	m        map[K]V
	readOnly bool
}

func (mv *mapView[K, V]) Get(key K) (value V, ok bool) {
	value, ok = mv.m[key]
	return
}

func (mv *mapView[K, V]) Set(key K, value V) {
	if mv.readOnly {
		panic("sync: Set on read-only view")
	}
	mv.m[key] = value
}

func (mv *mapView[K, V]) Delete(key K) {
	if mv.readOnly {
		panic("sync: Delete on read-only view")
	}
	delete(mv.m, key)
}

func (mv *mapView[K, V]) Clear() {
	if mv.readOnly {
		panic("sync: Clear on read-only view")
	}
	clear(mv.m)
}

func (mv *mapView[K, V]) Range(f func(key K, value V) bool) {
	for k, v := range mv.m {
		if !f(k, v) {
			break
		}
	}
}

func (mv *mapView[K, V]) Len() int {
	return len(mv.m)
}

// WithLock runs f under the write lock, for multi-step updates that must be atomic.
//
//	m.WithLock(func(view sync.View[string, int]) {
//		n, _ := view.Get("a")
//		view.Set("a", n+1)
//	})
func (m *Map[K, V]) WithLock(f func(view View[K, V])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&mapView[K, V]{m: m.m})
}

// WithRLock runs f under the read lock. Mutating the view panics.
func (m *Map[K, V]) WithRLock(f func(view View[K, V])) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f(&mapView[K, V]{m: m.m, readOnly: true})
}
