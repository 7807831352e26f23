package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const burstIdleTTL = 5 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BurstGuard is an in-process token bucket per client IP. It sheds floods before they reach
// Redis or Postgres; the sliding-window Throttle still owns the per-identity limits.
type BurstGuard struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perSecond rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewBurstGuard allows perSecond sustained requests with bursts up to burst per client.
func NewBurstGuard(perSecond float64, burst int) *BurstGuard {
	return &BurstGuard{
		buckets:   make(map[string]*bucket),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		now:       time.Now,
	}
}

// Handler returns the gin middleware. A non-positive rate disables the guard.
func (g *BurstGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g == nil || g.perSecond <= 0 || g.burst <= 0 {
			c.Next()
			return
		}
		if !g.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, newErrorResponse(c, "rate limit exceeded"))
			return
		}
		c.Next()
	}
}

func (g *BurstGuard) allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) > time.Minute {
		for key, b := range g.buckets {
			if now.Sub(b.lastSeen) > burstIdleTTL {
				delete(g.buckets, key)
			}
		}
		g.lastSweep = now
	}

	b, ok := g.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(g.perSecond, g.burst)}
		g.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}
