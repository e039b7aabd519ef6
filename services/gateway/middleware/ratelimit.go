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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// =============================================================================
// Route Classes and Limits
// =============================================================================

// Route classes for rate limiting. Unknown routes fall into ClassGlobal.
const (
	ClassChat   = "chat"
	ClassMemory = "memory"
	ClassAgents = "agents"
	ClassGlobal = "global"
)

// Limit is the request budget for one route class within one window.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// DefaultLimits returns the stock per-class budgets: chat 60, memory 120,
// agents 30, global 200, all per 60 second window.
func DefaultLimits() map[string]Limit {
	w := 60 * time.Second
	return map[string]Limit{
		ClassChat:   {Requests: 60, Window: w},
		ClassMemory: {Requests: 120, Window: w},
		ClassAgents: {Requests: 30, Window: w},
		ClassGlobal: {Requests: 200, Window: w},
	}
}

// expiryGrace is added to the window length when computing bucket TTLs so
// a counter never vanishes while its window is still being judged.
const expiryGrace = 5 * time.Second

// =============================================================================
// Counter Store
// =============================================================================

// CounterStore abstracts the fixed-window counter storage.
//
// Incr atomically increments the counter for key, creating it with the
// given TTL when absent, and returns the post-increment value. The key
// embeds the window start, so a stale TTL can only over-retain, never
// bleed counts across windows.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// MemoryStore is the in-process CounterStore for single-instance
// deployments and tests.
//
// Expired buckets are reaped opportunistically on Incr; the sweep never
// resurrects an expired key, it can only delete.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*countBucket
	lastSweep time.Time
	now       func() time.Time
}

type countBucket struct {
	count   int64
	expires time.Time
}

// sweepInterval bounds how often the opportunistic reaper walks the map.
const sweepInterval = 30 * time.Second

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*countBucket),
		now:     time.Now,
	}
}

// Incr implements CounterStore.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		for k, b := range s.buckets {
			if now.After(b.expires) {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok || now.After(b.expires) {
		b = &countBucket{expires: now.Add(ttl)}
		s.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

// Len reports the current bucket count. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// =============================================================================
// Limiter
// =============================================================================

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	Reset      int64 // unix seconds when the current window closes
	RetryAfter int   // whole seconds until retry is sensible; set on denial
}

// Limiter enforces fixed-window budgets per (client, route class).
type Limiter struct {
	store  CounterStore
	limits map[string]Limit
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter builds a limiter over the given store. Missing classes in
// limits inherit nothing; lookups fall back to the global class, so the
// map should always carry ClassGlobal.
func NewLimiter(store CounterStore, limits map[string]Limit, logger *slog.Logger) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// Check consumes one request from the (clientID, class) window budget.
//
// Store failures fail open: an unreachable external store must not take
// provider access down with it. The failure is logged and the request
// passes with a full window advertised.
func (l *Limiter) Check(ctx context.Context, clientID, class string) Decision {
	limit, ok := l.limits[class]
	if !ok {
		class = ClassGlobal
		limit = l.limits[ClassGlobal]
	}
	if limit.Requests <= 0 || limit.Window <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	windowStart := now.Truncate(limit.Window)
	windowEnd := windowStart.Add(limit.Window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", clientID, class, windowStart.Unix())

	count, err := l.store.Incr(ctx, key, limit.Window+expiryGrace)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			"class", class,
			"error", err,
		)
		return Decision{Allowed: true, Remaining: limit.Requests, Reset: windowEnd.Unix()}
	}

	if count > limit.Requests {
		retry := int((windowEnd.Sub(now) + time.Second - 1) / time.Second)
		if retry < 1 {
			retry = 1
		}
		return Decision{
			Allowed:    false,
			Remaining:  0,
			Reset:      windowEnd.Unix(),
			RetryAfter: retry,
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: limit.Requests - count,
		Reset:     windowEnd.Unix(),
	}
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware creates a Gin middleware enforcing the class budget.
//
// Runs before auth, so the client key is derived without validating the
// token: a digest of the raw bearer credential when one is presented,
// otherwise the source address. A denial therefore reveals nothing about
// token validity. Successful responses carry X-RateLimit-Remaining and
// X-RateLimit-Reset; denials add Retry-After and a 429 body.
func RateLimitMiddleware(limiter *Limiter, class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		d := limiter.Check(c.Request.Context(), limiterClientID(c), class)

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.Reset, 10))

		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.NewRateLimited(d.RetryAfter))
			return
		}

		c.Next()
	}
}

// limiterClientID derives the pre-auth rate-limit identity.
//
// The token is hashed, never stored or compared, so two requests with
// the same credential share a bucket while the bucket key remains
// useless for recovering the credential.
func limiterClientID(c *gin.Context) string {
	if raw, ok := extractBearerToken(c); ok && raw != "" {
		sum := sha256.Sum256([]byte(raw))
		return "tok:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + c.ClientIP()
}
