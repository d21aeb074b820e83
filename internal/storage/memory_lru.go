package storage

import (
	"github.com/lutongjia9090/tinykv/internal/lru"
)

// MemoryLRU wraps Memory with a read-through, write-through LRU cache. The
// cache is strictly a performance layer and is never authoritative: Get
// consults it first and populates it on an underlying hit; Put and Delete
// update both the map and the cache so the two never diverge.
type MemoryLRU struct {
	backing *Memory
	cache   *lru.Cache
}

// NewMemoryLRU constructs a memory engine fronted by an LRU cache of the
// given capacity (0 disables caching without disabling the engine).
func NewMemoryLRU(capacity int) *MemoryLRU {
	return &MemoryLRU{
		backing: NewMemory(),
		cache:   lru.New(capacity),
	}
}

func (m *MemoryLRU) Put(key, value string) bool {
	ok := m.backing.Put(key, value)
	if ok {
		m.cache.Put(key, value)
	}
	return ok
}

func (m *MemoryLRU) Get(key string) (string, bool) {
	if v, ok := m.cache.Get(key); ok {
		return v, true
	}

	v, ok := m.backing.Get(key)
	if ok {
		m.cache.Put(key, v)
	}
	return v, ok
}

func (m *MemoryLRU) Delete(key string) bool {
	m.cache.Remove(key)
	return m.backing.Delete(key)
}

func (m *MemoryLRU) GetAllEntries() map[string]string {
	return m.backing.GetAllEntries()
}

func (m *MemoryLRU) Close() error { return nil }
