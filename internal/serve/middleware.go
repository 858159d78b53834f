package serve

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// requestLogger logs one line per request with zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_addr", r.RemoteAddr).
				Msg("request")
		})
	}
}

const (
	limiterIdleTTL    = 30 * time.Minute
	limiterSweepEvery = 5 * time.Minute
)

// ipLimiter keeps one token bucket per client address. Buckets unused for
// limiterIdleTTL are evicted by run.
type ipLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	lastAccessMu sync.Mutex
	lastAccess   map[string]time.Time
	now          func() time.Time
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	return &ipLimiter{
		limiters:   make(map[string]*rate.Limiter),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		lastAccess: make(map[string]time.Time),
		now:        time.Now,
	}
}

func (l *ipLimiter) get(key string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		l.touch(key)
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limiters[key]; !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.touch(key)
	return lim
}

func (l *ipLimiter) touch(key string) {
	l.lastAccessMu.Lock()
	l.lastAccess[key] = l.now()
	l.lastAccessMu.Unlock()
}

// run evicts idle buckets until ctx is done.
func (l *ipLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle(l.now().Add(-limiterIdleTTL))
		}
	}
}

// evictIdle drops buckets last used before cutoff and returns how many
// were removed.
func (l *ipLimiter) evictIdle(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastAccessMu.Lock()
	defer l.lastAccessMu.Unlock()

	removed := 0
	for key, seen := range l.lastAccess {
		if seen.Before(cutoff) {
			delete(l.lastAccess, key)
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

func (l *ipLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// middleware rejects requests over the per-address budget with 429.
// RealIP must run first so RemoteAddr reflects the client.
func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r.RemoteAddr)) {
			rateLimitHits.Inc()
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
