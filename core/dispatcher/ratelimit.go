package dispatcher

import (
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiterSet throttles invocation throughput per function id, the same
// per-key map of *rate.Limiter as infrastructure/middleware/ratelimit.go's
// RateLimiter, generalized from an IP/user key to a function id and wired
// ahead of the concurrency gate rather than as a standalone middleware,
// since only the invoke path needs it.
type rateLimiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newRateLimiterSet builds a set whose individual limiters allow
// requestsPerSecond sustained throughput with the given burst. A
// non-positive requestsPerSecond disables throttling entirely.
func newRateLimiterSet(requestsPerSecond float64, burst int) *rateLimiterSet {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiterSet{
		limiters: map[string]*rate.Limiter{},
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// allow reports whether a request for key may proceed right now. Always
// true when the set was built with a non-positive rate.
func (s *rateLimiterSet) allow(key string) bool {
	if s.limit <= 0 {
		return true
	}
	s.mu.Lock()
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}
