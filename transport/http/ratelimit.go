package http

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// DefaultRateLimitIdle is how long a client's limiter is kept without traffic.
const DefaultRateLimitIdle = 3 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiterRegistry keeps one token bucket per key. Keys come from
// unauthenticated traffic, so idle entries are dropped by Sweep.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiterRegistry creates a registry handing out limiters of limit
// events per second with the given burst.
func NewRateLimiterRegistry(limit float64, burst int) *RateLimiterRegistry {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiterRegistry{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(limit),
		burst:    burst,
		now:      time.Now,
	}
}

// GetOrCreate returns the limiter for key, creating it on first use.
func (r *RateLimiterRegistry) GetOrCreate(key string) *rate.Limiter {
	now := r.now().UnixNano()

	r.mu.RLock()
	entry, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		entry.lastSeen.Store(now)
		return entry.limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok = r.limiters[key]; !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = entry
	}
	entry.lastSeen.Store(now)
	return entry.limiter
}

// Delete drops the limiter for key.
func (r *RateLimiterRegistry) Delete(key string) {
	r.mu.Lock()
	delete(r.limiters, key)
	r.mu.Unlock()
}

// Len reports the number of tracked keys.
func (r *RateLimiterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

// Sweep drops limiters not used for longer than idle and returns how many
// were dropped. An idle period of at least burst/limit seconds loses no
// state, since the bucket has refilled by then.
func (r *RateLimiterRegistry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for key, entry := range r.limiters {
		if entry.lastSeen.Load() < cutoff {
			delete(r.limiters, key)
			dropped++
		}
	}
	return dropped
}

// Run sweeps idle limiters every idle/2 until ctx is done.
func (r *RateLimiterRegistry) Run(ctx context.Context, idle time.Duration) {
	idle = r.sweepIdle(idle)

	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// sweepIdle never goes below the time an empty bucket needs to refill.
func (r *RateLimiterRegistry) sweepIdle(idle time.Duration) time.Duration {
	if idle <= 0 {
		idle = DefaultRateLimitIdle
	}
	if r.limit <= 0 {
		return idle
	}
	refill := float64(r.burst) / float64(r.limit)
	if refill < (24 * time.Hour).Seconds() {
		if d := time.Duration(refill * float64(time.Second)); d > idle {
			idle = d
		}
	}
	return idle
}

// RateLimitMiddleware rejects requests from a client IP that exceeded its bucket.
// A nil registry lets every request through.
func RateLimitMiddleware(registry *RateLimiterRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if registry == nil {
			c.Next()
			return
		}
		if !registry.GetOrCreate(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			abortWithKind(c, kindRateLimited)
			return
		}
		c.Next()
	}
}
