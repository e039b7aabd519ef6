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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisStore_Integration requires a running Redis.
// Skipped when no instance answers on the default port.
func TestRedisStore_Integration(t *testing.T) {
	store, err := NewRedisStore("redis://localhost:6379/0")
	if err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer store.Close()

	ctx := context.Background()
	key := fmt.Sprintf("ratelimit:test:%d", time.Now().UnixNano())

	one, err := store.Incr(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), one)

	two, err := store.Incr(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), two)
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore("not-a-redis-url")
	assert.Error(t, err)
}
