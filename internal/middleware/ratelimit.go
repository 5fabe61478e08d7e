package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/coah80/pastvoices/internal/config"
)

const maxRateLimitEntries = 100000

// RateLimiter is a sliding-window limiter keyed by client IP.
type RateLimiter struct {
	window time.Duration
	max    int

	mu    sync.Mutex
	store map[string][]time.Time
	now   func() time.Time
}

// NewRateLimiter returns nil when limiting is disabled.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return nil
	}
	return &RateLimiter{
		window: cfg.Window,
		max:    cfg.Max,
		store:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetIn := l.check(clientIP(r))

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", l.max))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetIn))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"message": "Too many requests. Please slow down.",
				"resetIn": resetIn,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) check(ip string) (allowed bool, remaining int, resetIn int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	filtered := l.recent(l.store[ip], now)

	if len(filtered) >= l.max {
		resetSec := int(filtered[0].Add(l.window).Sub(now).Seconds()) + 1
		l.store[ip] = filtered
		return false, 0, resetSec
	}

	if _, known := l.store[ip]; !known && len(l.store) >= maxRateLimitEntries {
		return false, 0, int(l.window.Seconds())
	}

	filtered = append(filtered, now)
	l.store[ip] = filtered
	return true, l.max - len(filtered), 0
}

func (l *RateLimiter) recent(requests []time.Time, now time.Time) []time.Time {
	windowStart := now.Add(-l.window)
	filtered := requests[:0]
	for _, t := range requests {
		if t.After(windowStart) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// Sweep drops clients with no requests inside the window.
func (l *RateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for ip, requests := range l.store {
		filtered := l.recent(requests, now)
		if len(filtered) == 0 {
			delete(l.store, ip)
		} else {
			l.store[ip] = filtered
		}
	}
}

// Run sweeps every minute until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
