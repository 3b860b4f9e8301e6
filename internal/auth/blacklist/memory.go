package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryKV — KV в памяти процесса, когда Redis не поднят.
// Отозванные токены переживают только до рестарта.
type MemoryKV struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, []byte]
}

var _ KV = (*MemoryKV)(nil)

func NewMemoryKV() *MemoryKV {
	c := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	return &MemoryKV{cache: c}
}

func (m *MemoryKV) SetNX(_ context.Context, key string, val []byte, ttlSeconds int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache.Get(key) != nil {
		return false, nil
	}
	m.cache.Set(key, val, time.Duration(ttlSeconds)*time.Second)
	return true, nil
}

func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	return m.cache.Get(key) != nil, nil
}
