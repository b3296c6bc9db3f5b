package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

type entry struct {
	value     []byte
	expiresAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// MemoryCache is an in-process cache split into shards selected by an xxhash of the key.
type MemoryCache struct {
	shards    []*shard
	shardMask uint64
	now       func() time.Time
}

// NewMemoryCache creates a cache with the given number of shards, rounded up to a power of two.
func NewMemoryCache(shards int) *MemoryCache {
	if shards <= 0 {
		shards = defaultShards
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	c := &MemoryCache{
		shards:    make([]*shard, n),
		shardMask: uint64(n - 1),
		now:       time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: map[string]entry{}}
	}
	return c
}

func (c *MemoryCache) getShard(key string) *shard {
	return c.shards[xxhash.Sum64String(key)&c.shardMask]
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	s := c.getShard(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s := c.getShard(key)
	stored := make([]byte, len(value))
	copy(stored, value)
	s.mu.Lock()
	s.entries[key] = entry{value: stored, expiresAt: c.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (c *MemoryCache) InvalidatePrefix(_ context.Context, prefix string) error {
	for _, s := range c.shards {
		s.mu.Lock()
		for k := range s.entries {
			if strings.HasPrefix(k, prefix) {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	count := 0
	for _, s := range c.shards {
		s.mu.RLock()
		count += len(s.entries)
		s.mu.RUnlock()
	}
	return count
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }
