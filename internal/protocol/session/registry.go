package session

import (
	"errors"
	"fmt"
	"sync"
)

var ErrDuplicateKey = errors.New("session: duplicate pending key")

// Registry owns in-flight exchange state. Every entry is inserted once and
// removed exactly once; removing an absent key through Take is a defect.
type Registry[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{items: make(map[K]V)}
}

func (r *Registry[K, V]) Insert(key K, v V) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}
	r.items[key] = v
	return nil
}

func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

func (r *Registry[K, V]) Contains(key K) bool {
	_, ok := r.Get(key)
	return ok
}

// Take removes and returns the entry for key. It panics when key is absent,
// which means a terminal transition ran twice.
func (r *Registry[K, V]) Take(key K) V {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[key]
	if !ok {
		panic(fmt.Sprintf("session: take of absent key %v", key))
	}
	delete(r.items, key)
	return v
}

func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Drain removes and returns every entry.
func (r *Registry[K, V]) Drain() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]V, 0, len(r.items))
	for k, v := range r.items {
		out = append(out, v)
		delete(r.items, k)
	}
	return out
}
