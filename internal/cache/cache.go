/*
Copyright 2025 Nordvend Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cache is the short-retention tier of the deduplication index: a
// Redis-backed cache with a local TinyLFU layer in front. Entries expire
// with the owning company's dedup window.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"

	"github.com/nordvend/pant/config"
	redis_db "github.com/nordvend/pant/internal/redis-db"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = cache.ErrCacheMiss

// Cache is the minimal surface the dedup index and jobs need.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, data interface{}) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// RedisCache implements Cache on go-redis/cache with local TinyLFU.
type RedisCache struct {
	cache *cache.Cache
}

// NewCache connects to the configured Redis and returns the cache tier.
func NewCache() (Cache, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return newRedisCache([]string{fmt.Sprintf("redis://%s", cfg.Redis.Dns)})
}

// localCacheSize bounds the in-process TinyLFU tier (number of entries).
const localCacheSize = 128000

func newRedisCache(addresses []string) (*RedisCache, error) {
	client, err := redis_db.NewRedisClient(addresses)
	if err != nil {
		return nil, err
	}

	c := cache.New(&cache.Options{
		Redis:      client.Client(),
		LocalCache: cache.NewTinyLFU(localCacheSize, 1*time.Minute),
	})
	return &RedisCache{cache: c}, nil
}

// NewFromRedis builds the cache tier on an existing client. Used by tests
// and by callers that already hold a connection.
func NewFromRedis(r *redis_db.Redis) *RedisCache {
	return &RedisCache{cache: cache.New(&cache.Options{
		Redis:      r.Client(),
		LocalCache: cache.NewTinyLFU(localCacheSize, 1*time.Minute),
	})}
}

func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) error {
	return r.cache.Get(ctx, key, data)
}

// Exists is the cheap existence probe used on the dedup fast path. It
// skips the local tier: expiry and writes from other processes must be
// visible here.
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	var ignored string
	err := r.cache.GetSkippingLocalCache(ctx, key, &ignored)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	return false, err
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}
