package web

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	limiterMaxAge    = 10 * time.Minute
	limiterSweepSize = 256
)

// IPRateLimiter keeps a token bucket per client IP.
type IPRateLimiter struct {
	Rate  rate.Limit
	Burst int
	Clock clockwork.Clock

	lock     sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates an IPRateLimiter.
func NewIPRateLimiter(r float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		Rate:     rate.Limit(r),
		Burst:    burst,
		Clock:    clockwork.NewRealClock(),
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow reports whether a request from ip may proceed now.
func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.Clock.Now()
	l.lock.Lock()
	defer l.lock.Unlock()
	entry, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= limiterSweepSize {
			l.sweep(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.Rate, l.Burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *IPRateLimiter) sweep(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterMaxAge {
			delete(l.limiters, ip)
		}
	}
}

// Middleware rejects requests exceeding the limit with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r.RemoteAddr)
		if !l.Allow(ip) {
			glog.V(1).Infof("http: rate limit exceeded %s %s", ip, r.URL.Path)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
