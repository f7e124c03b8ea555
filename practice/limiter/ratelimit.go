// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package limiter provides admission control for practice requests: a
// per-student sliding-window rate limit and a monthly usage cap. Both are
// side-effect-free with respect to the ledger and session state.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"lingopilot/platform/shared/logger"
)

// Per-minute request ceilings. Students of a paid-tier tutor get the
// higher ceiling.
const (
	DefaultLimitPerMinute = 10
	PaidLimitPerMinute    = 20
)

// Decision is the outcome of a rate-limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time
}

// RateLimiter enforces a per-student sliding window over Redis. When no
// Redis client is configured it falls back to an in-memory window, and on
// Redis errors it fails open: admission control must never take the feature
// down with it.
type RateLimiter struct {
	client *redis.Client
	log    *logger.Logger

	mu     sync.Mutex
	local  map[string][]time.Time
}

// NewRateLimiter creates a rate limiter. client may be nil, in which case
// the in-memory fallback is used (single-instance deployments and tests).
func NewRateLimiter(client *redis.Client, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.New("rate-limiter")
	}
	return &RateLimiter{
		client: client,
		log:    log,
		local:  make(map[string][]time.Time),
	}
}

// Allow checks whether the student may make another request this minute.
// Denial never mutates ledger or session state.
func (l *RateLimiter) Allow(ctx context.Context, studentID string, highLimit bool) Decision {
	limit := DefaultLimitPerMinute
	if highLimit {
		limit = PaidLimitPerMinute
	}

	if l.client == nil {
		return l.allowLocal(studentID, limit)
	}

	now := time.Now()
	key := fmt.Sprintf("practice_rl:%s", studentID)

	// Pipeline: trim the window, count it, record this request
	pipe := l.client.Pipeline()
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		// Fail open on Redis errors
		l.log.Warn(studentID, "", "Redis rate limit check failed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return Decision{Allowed: true, Limit: limit, Remaining: limit}
	}

	count := int(cmds[1].(*redis.IntCmd).Val())
	reset := now.Truncate(time.Minute).Add(time.Minute)

	if count >= limit {
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: time.Until(reset),
			Reset:      reset,
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count - 1,
		Reset:     reset,
	}
}

// allowLocal is the in-memory sliding window used when Redis is absent
func (l *RateLimiter) allowLocal(studentID string, limit int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	kept := l.local[studentID][:0]
	for _, t := range l.local[studentID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	reset := now.Truncate(time.Minute).Add(time.Minute)

	if len(kept) >= limit {
		l.local[studentID] = kept
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: time.Until(reset),
			Reset:      reset,
		}
	}

	l.local[studentID] = append(kept, now)
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(kept) - 1,
		Reset:     reset,
	}
}
