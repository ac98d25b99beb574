package pmuproto

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ConfigurationStore remembers the latest configuration frame per ID code so data
// frames can be decoded. Implementations must be safe for concurrent use.
type ConfigurationStore interface {
	Configuration(idCode uint16) (*ConfigurationFrame, bool)
	StoreConfiguration(cfg *ConfigurationFrame) error
}

// MemoryStore is an in-memory ConfigurationStore bounded by an LRU.
type MemoryStore struct {
	cache *lru.Cache[uint16, *ConfigurationFrame]
}

// NewMemoryStore NewMemoryStore
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[uint16, *ConfigurationFrame](size)
	if err != nil {
		panic(err)
	}
	return &MemoryStore{cache: cache}
}

func (m *MemoryStore) Configuration(idCode uint16) (*ConfigurationFrame, bool) {
	return m.cache.Get(idCode)
}

func (m *MemoryStore) StoreConfiguration(cfg *ConfigurationFrame) error {
	m.cache.Add(cfg.IDCode, cfg)
	return nil
}

// Remove Remove
func (m *MemoryStore) Remove(idCode uint16) {
	m.cache.Remove(idCode)
}

// Len Len
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
