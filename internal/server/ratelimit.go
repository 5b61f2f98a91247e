package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const defaultVisitorTTL = 3 * time.Minute

// RateLimitConfig bounds requests per client IP. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS        float64
	Burst      int
	VisitorTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	clock func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func newRateLimiter(cfg RateLimitConfig, clock func() time.Time) *rateLimiter {
	ttl := cfg.VisitorTTL
	if ttl <= 0 {
		ttl = defaultVisitorTTL
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.RPS))
	}
	return &rateLimiter{
		limit:    rate.Limit(cfg.RPS),
		burst:    burst,
		ttl:      ttl,
		clock:    clock,
		visitors: make(map[string]*visitor),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := l.clock()
	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.ttl {
		l.sweepLocked(now)
		l.lastSweep = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

// sweep forgets clients idle for longer than the visitor TTL.
func (l *rateLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.clock())
}

func (l *rateLimiter) sweepLocked(now time.Time) int {
	cutoff := now.Add(-l.ttl)
	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

func (h *httpHandler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.allow(c.ClientIP()) {
			if h.metrics != nil {
				h.metrics.rateLimited.Inc()
			}
			abortWithReason(c, http.StatusTooManyRequests, "rate_limited")
			return
		}
		c.Next()
	}
}
