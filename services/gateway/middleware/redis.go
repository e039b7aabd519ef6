// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and stamps the TTL on
// first touch, atomically. One round trip per check.
//
// KEYS[1] = window counter key
// ARGV[1] = TTL in seconds
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisStore is the external CounterStore for multi-instance gateways
// that need shared rate-limit windows.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance named by url
// (redis://[user:pass@]host:port/db). The connection is verified with a
// short ping so a misconfigured store fails at startup, not at the first
// rate-limit check.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Incr implements CounterStore.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	res, err := fixedWindowScript.Run(ctx, s.client, []string{key}, seconds).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("redis incr: unexpected reply type %T", res)
	}
	return count, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Compile-time interface compliance check.
var _ CounterStore = (*RedisStore)(nil)
