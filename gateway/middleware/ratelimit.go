package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tenure/observability"
)

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

const (
	visitorCap  = 4096
	visitorIdle = 10 * time.Minute
)

type visitorKey struct {
	route  string
	client string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client per route group. Clients
// are identified by X-Real-IP, the first X-Forwarded-For hop, or the
// remote address, in that order.
type RateLimiter struct {
	limits map[string]RateLimit

	mu       sync.Mutex
	visitors map[visitorKey]*visitor
	now      func() time.Time
}

func NewRateLimiter(limits map[string]RateLimit) *RateLimiter {
	return &RateLimiter{
		limits:   limits,
		visitors: make(map[visitorKey]*visitor),
		now:      time.Now,
	}
}

// Middleware throttles the wrapped handler. Routes without a configured
// limit pass through untouched.
func (r *RateLimiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limit, ok := r.limits[route]
			if !ok {
				next.ServeHTTP(w, req)
				return
			}
			if !r.allow(visitorKey{route: route, client: clientID(req)}, limit) {
				observability.Gateway().RecordProxyError(route, "rate_limit")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) allow(key visitorKey, cfg RateLimit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[key]
	if !ok {
		if len(r.visitors) >= visitorCap {
			r.evictIdle()
		}
		v = &visitor{limiter: cfg.newLimiter()}
		r.visitors[key] = v
	}
	v.lastSeen = r.now()
	return v.limiter.Allow()
}

// evictIdle drops buckets that have been quiet long enough to refill
// completely. Called with mu held.
func (r *RateLimiter) evictIdle() {
	cutoff := r.now().Add(-visitorIdle)
	for key, v := range r.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(r.visitors, key)
		}
	}
}

// newLimiter translates the per-minute config into a token bucket,
// clamping degenerate values to one request per second.
func (l RateLimit) newLimiter() *rate.Limiter {
	perSecond := l.RequestsPerMinute / 60
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if hop := firstForwardedHop(r.Header.Get("X-Forwarded-For")); hop != "" {
		return hop
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// firstForwardedHop returns the client hop from an X-Forwarded-For chain,
// or the raw header when the hop does not parse as an address.
func firstForwardedHop(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	first := header
	if comma := strings.IndexByte(header, ','); comma >= 0 {
		first = header[:comma]
	}
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return header
}
