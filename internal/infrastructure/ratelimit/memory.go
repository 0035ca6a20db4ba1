package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	idleAfter = 10 * time.Minute
	// defaultMaxKeys bounds the bucket map; the least recently seen key is
	// evicted when a new one arrives at the cap.
	defaultMaxKeys = 50_000
)

// MemoryLimiter is an in-process token bucket per key with stale-entry cleanup.
// It only limits a single instance; use RedisLimiter when several run.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	r        rate.Limit
	burst    int
	maxKeys  int
	now      func() time.Time
}

// NewMemoryLimiter creates a limiter allowing r requests/second, burst up to burst.
// The cleanup goroutine stops when ctx is done.
func NewMemoryLimiter(ctx context.Context, r rate.Limit, burst int) *MemoryLimiter {
	ml := &MemoryLimiter{
		limiters: make(map[string]*keyLimiter),
		r:        r,
		burst:    burst,
		maxKeys:  defaultMaxKeys,
		now:      time.Now,
	}
	go ml.cleanup(ctx)
	return ml
}

func (ml *MemoryLimiter) get(key string) *rate.Limiter {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	now := ml.now()
	if v, ok := ml.limiters[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	if len(ml.limiters) >= ml.maxKeys {
		ml.evictLocked(now)
	}
	l := rate.NewLimiter(ml.r, ml.burst)
	ml.limiters[key] = &keyLimiter{limiter: l, lastSeen: now}
	return l
}

// evictLocked drops idle entries, or the oldest one when none are idle.
func (ml *MemoryLimiter) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, v := range ml.limiters {
		if now.Sub(v.lastSeen) > idleAfter {
			delete(ml.limiters, key)
			continue
		}
		if oldestKey == "" || v.lastSeen.Before(oldest) {
			oldestKey, oldest = key, v.lastSeen
		}
	}
	if len(ml.limiters) >= ml.maxKeys && oldestKey != "" {
		delete(ml.limiters, oldestKey)
	}
}

// Allow consumes one token for key.
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := ml.now()
	l := ml.get(key)
	allowed := l.AllowN(now, 1)
	remaining := int(l.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	reset := now
	if !allowed && ml.r > 0 {
		reset = now.Add(time.Duration(float64(time.Second) / float64(ml.r)))
	}
	return Decision{Allowed: allowed, Limit: ml.burst, Remaining: remaining, ResetAt: reset}, nil
}

// cleanup removes idle entries every 5 minutes.
func (ml *MemoryLimiter) cleanup(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		ml.mu.Lock()
		for key, v := range ml.limiters {
			if ml.now().Sub(v.lastSeen) > idleAfter {
				delete(ml.limiters, key)
			}
		}
		ml.mu.Unlock()
	}
}
