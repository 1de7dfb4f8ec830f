package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"mt5-command-server/internal/models"
	"mt5-command-server/internal/rest"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const limiterIdleTimeout = 10 * time.Minute

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter applies a per client IP token bucket to the handlers it wraps.
type RateLimiter struct {
	perMinute int
	burst     int

	mutex       sync.Mutex
	limiters    map[string]*rateLimiterEntry
	lastCleanup time.Time
	now         func() time.Time
}

// NewRateLimiter allows perMinute requests per client with the given burst.
// A perMinute of 0 disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		limiters:  make(map[string]*rateLimiterEntry),
		now:       time.Now,
	}
}

func (l *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	if l == nil || l.perMinute <= 0 {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.getLimiter(ip).Allow() {
			zerolog.Ctx(r.Context()).Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			rest.WriteResponse(http.StatusTooManyRequests, w, r, models.NewErrorResponse("too many requests"))
			return
		}
		next(w, r)
	}
}

func (l *RateLimiter) getLimiter(ip string) *rate.Limiter {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > time.Minute {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastUsed) > limiterIdleTimeout {
				delete(l.limiters, key)
			}
		}
		l.lastCleanup = now
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.perMinute)/60.0, l.burst),
		}
		l.limiters[ip] = entry
	}
	entry.lastUsed = now

	return entry.limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
