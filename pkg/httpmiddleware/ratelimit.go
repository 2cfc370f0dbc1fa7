package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each sliding window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from limiting, e.g. health probes.
	Skip func(*http.Request) bool
}

// window counts requests in the current and previous fixed windows; the
// sliding estimate weights the previous count by its remaining overlap.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type rateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	windows map[string]*window
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &rateLimiter{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
}

// allow records a request for key at now and reports whether it fits the
// limit, how many requests remain, and when the current window resets.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, found := rl.windows[key]
	if !found {
		w = &window{start: now.Truncate(rl.cfg.Window)}
		rl.windows[key] = w
	}

	if elapsed := now.Sub(w.start); elapsed >= rl.cfg.Window {
		// One full window elapsed: current becomes previous. Two or more: both
		// are stale.
		if elapsed < 2*rl.cfg.Window {
			w.prev = w.curr
		} else {
			w.prev = 0
		}
		w.curr = 0
		w.start = now.Truncate(rl.cfg.Window)
	}

	overlap := 1 - now.Sub(w.start).Seconds()/rl.cfg.Window.Seconds()
	estimate := w.prev*math.Max(overlap, 0) + w.curr
	resetAt = w.start.Add(rl.cfg.Window)

	if estimate >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	w.curr++

	return max(int(float64(rl.cfg.Max)-estimate-1), 0), resetAt, true
}

// evict drops windows that have been idle for two full windows.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.windows {
		if now.Sub(w.start) >= 2*rl.cfg.Window {
			delete(rl.windows, key)
		}
	}
}

func (rl *rateLimiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// RateLimit returns a middleware that enforces a per-key sliding window rate
// limit. Limited requests get 429 with a JSON body and Retry-After; every
// limited-path response carries X-RateLimit-Limit, X-RateLimit-Remaining, and
// X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is like RateLimit but also evicts idle keys in the
// background until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go rl.evictLoop(ctx)
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		remaining, resetAt, ok := rl.allow(rl.cfg.KeyFunc(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !ok {
			retryAfter := max(time.Until(resetAt), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SkipPaths returns a Skip func matching exact URL paths.
func SkipPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}
