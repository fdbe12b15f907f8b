package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorMaxAge = 10 * time.Minute

// IPRateLimiter provides per-IP rate limiting middleware.
type IPRateLimiter struct {
	visitors map[string]*visitorEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// visitorEntry holds the rate limiter and last seen time for a visitor.
type visitorEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a new IP-based rate limiter. Stale entries are
// only removed while CleanupLoop runs.
func NewIPRateLimiter(requestsPerMinute int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitorEntry, 256),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
	}
}

// Allow reports whether a request from ip may proceed.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.visitors[ip]
	if !exists {
		entry = &visitorEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = entry
	}

	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// Middleware returns an HTTP middleware that enforces rate limiting per IP.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// chi's RealIP middleware sets RemoteAddr.
		if !l.Allow(r.RemoteAddr) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			//nolint:errcheck // Response writing errors are not recoverable
			w.Write([]byte(`{"error":"rate limit exceeded"}`))

			return
		}

		next.ServeHTTP(w, r)
	})
}

// CleanupLoop periodically removes stale IP entries until ctx is done.
func (l *IPRateLimiter) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(visitorMaxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup(visitorMaxAge)
		}
	}
}

// cleanup removes entries that haven't been seen for longer than maxAge.
func (l *IPRateLimiter) cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)

	for ip, entry := range l.visitors {
		if entry.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}
