package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPerMinute is the limiter's default allowance per IP.
const DefaultPerMinute = 120

// cleanupThreshold is the tracked-IP count past which Cleanup clears the
// whole map rather than tracking individual last-seen times.
const cleanupThreshold = 10000

// Limiter holds one token-bucket per client IP.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	perMinute int
}

// New creates a Limiter allowing perMinute requests per IP, with bursts up
// to perMinute. perMinute defaults to DefaultPerMinute when <= 0.
func New(perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
	}
}

// Allow reports whether a request from r's client IP may proceed,
// creating that IP's bucket on first use.
func (l *Limiter) Allow(r *http.Request) bool {
	ip := clientIP(r)

	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Cleanup discards tracked IPs once their number grows unreasonably
// large. Intended to run periodically from a background goroutine.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.limiters) > cleanupThreshold {
		l.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanupJob runs Cleanup on an hourly ticker until stop is closed.
func (l *Limiter) StartCleanupJob(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
