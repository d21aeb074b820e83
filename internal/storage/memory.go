package storage

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is a concurrent-map-backed engine. It uses xsync.MapOf instead of
// a hand-mutexed map (the corpus shows this exact swap is common practice —
// see the puzpuzpuz/xsync dependency in the bgpfix-bgpipe and
// fsvxavier-nexs-lib manifests) since every operation here is a simple,
// independent key lookup with no need for the coarse single-mutex
// discipline the spec mandates for the LRU cache.
type Memory struct {
	data *xsync.MapOf[string, string]
}

// NewMemory constructs an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{data: xsync.NewMapOf[string, string]()}
}

func (m *Memory) Put(key, value string) bool {
	m.data.Store(key, value)
	return true
}

func (m *Memory) Get(key string) (string, bool) {
	return m.data.Load(key)
}

func (m *Memory) Delete(key string) bool {
	_, existed := m.data.LoadAndDelete(key)
	return existed
}

func (m *Memory) GetAllEntries() map[string]string {
	out := make(map[string]string, m.data.Size())
	m.data.Range(func(key, value string) bool {
		out[key] = value
		return true
	})
	return out
}

func (m *Memory) Close() error { return nil }
