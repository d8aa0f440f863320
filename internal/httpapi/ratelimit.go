package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RateLimit configures the per-tenant token bucket. MaxRequests over
// WindowSeconds sets the refill rate; Burst sets the bucket capacity.
type RateLimit struct {
	WindowSeconds int
	MaxRequests   int
	Burst         int
}

// tokenBucket is a single tenant's bucket.
type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(capacity int, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow consumes one token if available. It returns the remaining token
// count, when the next token arrives and when the bucket refills fully.
func (tb *tokenBucket) allow() (bool, int, time.Time, time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	tokensNeeded := tb.capacity - tb.tokens
	fullResetTime := now.Add(time.Duration(tokensNeeded/tb.refillRate) * time.Second)

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true, int(tb.tokens), now, fullResetTime
	}

	tokensUntilNext := 1.0 - tb.tokens
	secondsUntilNext := tokensUntilNext / tb.refillRate
	nextTokenTime := now.Add(time.Duration(secondsUntilNext) * time.Second)

	return false, 0, nextTokenTime, fullResetTime
}

// rateLimiter holds one bucket per tenant. In-memory on purpose: the
// kernel runs as a small fixed fleet and per-instance fairness is enough.
type rateLimiter struct {
	buckets map[string]*tokenBucket
	config  RateLimit
	mu      sync.RWMutex
}

func newRateLimiter(config RateLimit) *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*tokenBucket),
		config:  config,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) getBucket(tenant string) *tokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[tenant]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if bucket, exists := rl.buckets[tenant]; exists {
		return bucket
	}
	refillRate := float64(rl.config.MaxRequests) / float64(rl.config.WindowSeconds)
	bucket = newTokenBucket(rl.config.Burst, refillRate)
	rl.buckets[tenant] = bucket
	return bucket
}

func (rl *rateLimiter) allow(tenant string) (bool, int, time.Time, time.Time) {
	return rl.getBucket(tenant).allow()
}

// cleanupLoop drops buckets idle for over an hour.
func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for tenant, bucket := range rl.buckets {
			bucket.mu.Lock()
			if time.Since(bucket.lastRefill) > time.Hour {
				delete(rl.buckets, tenant)
			}
			bucket.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware enforces a per-tenant token bucket. It must sit
// behind TenantMiddleware so the tenant is already resolved.
func RateLimitMiddleware(config RateLimit) func(http.Handler) http.Handler {
	limiter := newRateLimiter(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := TenantID(r.Context())
			if tenant == uuid.Nil {
				next.ServeHTTP(w, r)
				return
			}
			key := tenant.String()

			allowed, remaining, nextTokenTime, fullResetTime := limiter.allow(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(fullResetTime.Unix(), 10))
			w.Header().Set("X-RateLimit-Burst", strconv.Itoa(config.Burst))

			if !allowed {
				retryAfter := int(time.Until(nextTokenTime).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Ctx(r.Context()).Warn().
					Str("path", r.URL.Path).
					Int("retryAfter", retryAfter).
					Msg("rate limit exceeded")

				writeError(w, r, http.StatusTooManyRequests,
					"rate limit exceeded, retry after "+strconv.Itoa(retryAfter)+" seconds")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
