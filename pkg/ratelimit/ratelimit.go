// Package ratelimit implements a per-IP fixed-window rate limiter used on
// the credential-accepting auth endpoints.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
)

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter limits requests per client IP within a fixed window.
type Limiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	maxRequests int
	window      time.Duration
	now         func() time.Time

	done chan struct{}
	stop sync.Once
}

// New creates a limiter allowing maxRequests per window per IP and starts
// its background cleanup. Call Stop when the owning process shuts down.
func New(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		entries:     make(map[string]*entry),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop terminates the background cleanup. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stop.Do(func() { close(l.done) })
}

// Allow records a request for ip and reports whether it is within the limit.
func (l *Limiter) Allow(ip string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok || now.Sub(e.windowStart) > l.window {
		l.entries[ip] = &entry{count: 1, windowStart: now}
		return true
	}
	e.count++
	return e.count <= l.maxRequests
}

// Middleware wraps a handler with the limiter, answering 429 when a client
// exceeds its budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, map[string]string{
				"error":   "Too Many Requests",
				"message": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for ip, e := range l.entries {
				if now.Sub(e.windowStart) > l.window*2 {
					delete(l.entries, ip)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
