package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/livecanvas/internal/logging"
)

const (
	bucketExpiry  = 10 * time.Minute
	sweepInterval = 5 * time.Minute
)

// RateLimiter implements per-client token bucket rate limiting. Idle
// buckets are swept lazily on Check, so the limiter owns no goroutine.
type RateLimiter struct {
	buckets   map[string]*tokenBucket
	mutex     sync.Mutex
	perMinute int
	burst     int
	lastSweep time.Time
	now       func() time.Time
	logger    logging.Logger
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter allows perMinute requests per client per minute with a
// burst of a tenth of that, but at least min(perMinute, 10).
func NewRateLimiter(perMinute int, logger logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Nop()
	}

	burst := perMinute / 10
	if burst < 10 {
		burst = min(perMinute, 10)
	}

	return &RateLimiter{
		buckets:   make(map[string]*tokenBucket),
		perMinute: perMinute,
		burst:     burst,
		now:       time.Now,
		logger:    logger,
	}
}

// Check consumes a token for key if one is available.
func (rl *RateLimiter) Check(key string) RateLimitResult {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	if rl.lastSweep.IsZero() {
		rl.lastSweep = now
	}
	if now.Sub(rl.lastSweep) > sweepInterval {
		rl.sweep(now)
	}

	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: float64(rl.burst), lastRefill: now}
		rl.buckets[key] = bucket
	}

	refill := float64(now.Sub(bucket.lastRefill)) * float64(rl.perMinute) / float64(time.Minute)
	bucket.tokens = math.Min(float64(rl.burst), bucket.tokens+refill)
	bucket.lastRefill = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return RateLimitResult{Allowed: true, Remaining: int(bucket.tokens)}
	}

	missing := 1 - bucket.tokens
	retry := time.Duration(missing * float64(time.Minute) / float64(rl.perMinute))
	return RateLimitResult{Allowed: false, RetryAfter: retry}
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, bucket := range rl.buckets {
		if now.Sub(bucket.lastRefill) > bucketExpiry {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		result := rl.Check(ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(result.RetryAfter.Seconds())))
			rl.logger.Info(r.Context(), "Rate limit exceeded",
				"client_ip", ip,
				"path", r.URL.Path,
				"method", r.Method)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
