package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Store is a byte-oriented TTL cache. A miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	defaultTTL  = 5 * time.Second
	defaultSize = 1024
)

// Cache is a bounded in-process Store. Entries leave on expiry or when the
// least recently used one is evicted to make room.
type Cache struct {
	ttl time.Duration
	lru *lru.LRU[string, []byte]
}

func New(ttl time.Duration, size int) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if size <= 0 {
		size = defaultSize
	}

	return &Cache{
		ttl: ttl,
		lru: lru.NewLRU[string, []byte](size, nil, ttl),
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}

	return val, true, nil
}

func (c *Cache) Set(_ context.Context, key string, val []byte) error {
	c.lru.Add(key, val)

	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.lru.Remove(key)
	}

	return nil
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) Clear() {
	c.lru.Purge()
}
