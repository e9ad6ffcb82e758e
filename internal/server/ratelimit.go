package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiter hands out one token bucket per client IP. Idle entries are
// swept so the map stays bounded.
type clientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientEntry
	rl       rate.Limit
	burst    int
	lastSeen time.Duration
}

type clientEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newClientLimiter(requestsPerMinute int) *clientLimiter {
	return &clientLimiter{
		clients:  map[string]*clientEntry{},
		rl:       rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
		lastSeen: 3 * time.Minute,
	}
}

func (c *clientLimiter) allow(clientIP string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.clients[clientIP]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(c.rl, c.burst)}
		c.clients[clientIP] = entry
	}
	entry.seen = now

	if len(c.clients) > 1024 {
		for ip, e := range c.clients {
			if now.Sub(e.seen) > c.lastSeen {
				delete(c.clients, ip)
			}
		}
	}

	return entry.limiter.Allow()
}

// rateLimitMiddleware bounds per-client request rates across all endpoints.
func rateLimitMiddleware(limiter *clientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope{
				Success: false,
				Error:   "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
