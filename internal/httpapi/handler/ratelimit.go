package handler

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// A client bucket not seen for this long is evicted.
const limiterStaleAfter = 10 * time.Minute

// clientLimiters tracks one token bucket per client IP.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps, burst int) *clientLimiters {
	return &clientLimiters{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// get returns the bucket for ip, creating it on first sight.
func (cl *clientLimiters) get(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	b, ok := cl.buckets[ip]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(cl.rps, cl.burst)}
		cl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.lim
}

// evictStale removes buckets idle past the stale window and returns how many
// were dropped.
func (cl *clientLimiters) evictStale(now time.Time) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	evicted := 0
	for ip, b := range cl.buckets {
		if now.Sub(b.lastSeen) > limiterStaleAfter {
			delete(cl.buckets, ip)
			evicted++
		}
	}
	return evicted
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size. Requests to paths listed in exempt (health and metrics
// probes) bypass the limiter. Rejected requests carry a Retry-After header
// derived from the bucket's next-token delay.
func RateLimiter(rps, burst int, exempt ...string) gin.HandlerFunc {
	cl := newClientLimiters(rps, burst)

	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	go func() {
		ticker := time.NewTicker(limiterStaleAfter / 2)
		defer ticker.Stop()
		for range ticker.C {
			cl.evictStale(time.Now())
		}
	}()

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		res := cl.get(c.ClientIP()).Reserve()
		if !res.OK() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			retry := int(delay / time.Second)
			if delay%time.Second > 0 {
				retry++
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
