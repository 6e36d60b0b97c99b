package softdelete

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/testbridge-backend/internal/domain"
)

// Entry is a cached preview.
type Entry struct {
	UserID      uint        `json:"user_id"`
	Mode        Mode        `json:"mode"`
	Kind        domain.Kind `json:"kind"`
	RootIDs     []uint      `json:"root_ids"`
	Fingerprint string      `json:"fingerprint"`
	Set         Set         `json:"set"`
}

// Cache stores previews until they are taken once.
type Cache interface {
	Put(ctx context.Context, key string, e Entry, ttl time.Duration) error
	// Take returns and removes the entry; nil when absent or expired.
	Take(ctx context.Context, key string) (*Entry, error)
}

type lruCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, Entry]
}

// NewLRUCache keeps previews in process memory.
func NewLRUCache(size int, ttl time.Duration) Cache {
	if size <= 0 {
		size = 1024
	}
	return &lruCache{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (c *lruCache) Put(_ context.Context, key string, e Entry, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, e)
	return nil
}

func (c *lruCache) Take(_ context.Context, key string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	c.lru.Remove(key)
	return &e, nil
}

type redisCache struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewRedisCache shares previews across instances.
func NewRedisCache(rdb goredis.UniversalClient, prefix string) Cache {
	if prefix == "" {
		prefix = "archive_cache:"
	}
	return &redisCache{rdb: rdb, prefix: prefix}
}

func (c *redisCache) Put(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.prefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set preview: %w", err)
	}
	return nil
}

func (c *redisCache) Take(ctx context.Context, key string) (*Entry, error) {
	b, err := c.rdb.GetDel(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis take preview: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
