package loader

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo caches loader results per key and collapses concurrent loads of the
// same key into one. Failed loads are not cached.
type Memo struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

func NewMemo() *Memo {
	return &Memo{cache: make(map[string][]byte)}
}

// Do returns the cached value for key or runs load once to fill it.
func (m *Memo) Do(key string, load func() ([]byte, error)) ([]byte, error) {
	if cached, ok := m.get(key); ok {
		return cached, nil
	}

	result, err, _ := m.group.Do(key, func() (any, error) {
		if cached, ok := m.get(key); ok {
			return cached, nil
		}
		b, err := load()
		if err != nil {
			return nil, err
		}

		m.cacheMu.Lock()
		m.cache[key] = b
		m.cacheMu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Forget drops key from the cache.
func (m *Memo) Forget(key string) {
	m.cacheMu.Lock()
	delete(m.cache, key)
	m.cacheMu.Unlock()
}

func (m *Memo) get(key string) ([]byte, bool) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	b, ok := m.cache[key]
	return b, ok
}
