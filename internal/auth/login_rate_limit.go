package auth

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"anivault/internal/observability"
)

const (
	defaultLoginMaxHits = 10
	defaultLoginWindow  = time.Minute
	loginLimiterMaxIPs  = 5000
	minLoginRetryAfter  = time.Second
)

// LoginRateLimiter caps login attempts per client IP over a sliding window.
type LoginRateLimiter struct {
	mu      sync.Mutex
	maxHits int
	window  time.Duration
	clients map[string]*loginWindow
	maxIPs  int
	now     func() time.Time
}

// loginWindow holds attempt times in ascending order.
type loginWindow struct {
	hits []time.Time
}

func (w *loginWindow) trim(cutoff time.Time) {
	keep := 0
	for keep < len(w.hits) && !w.hits[keep].After(cutoff) {
		keep++
	}
	w.hits = w.hits[keep:]
}

func (w *loginWindow) idle(cutoff time.Time) bool {
	return len(w.hits) == 0 || !w.hits[len(w.hits)-1].After(cutoff)
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = defaultLoginMaxHits
	}
	if window <= 0 {
		window = defaultLoginWindow
	}

	return &LoginRateLimiter{
		maxHits: maxHits,
		window:  window,
		clients: make(map[string]*loginWindow),
		maxIPs:  loginLimiterMaxIPs,
		now:     time.Now,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(observability.ClientIP(r), l.now().UTC())
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	client, ok := l.clients[ip]
	if !ok {
		l.evictIdle(cutoff)
		client = &loginWindow{}
		l.clients[ip] = client
	}
	client.trim(cutoff)

	if len(client.hits) >= l.maxHits {
		return false, max(client.hits[0].Add(l.window).Sub(now), minLoginRetryAfter)
	}

	client.hits = append(client.hits, now)
	return true, 0
}

// evictIdle drops clients with no hit inside the window once the table is full.
func (l *LoginRateLimiter) evictIdle(cutoff time.Time) {
	if len(l.clients) < l.maxIPs {
		return
	}
	for ip, client := range l.clients {
		if client.idle(cutoff) {
			delete(l.clients, ip)
		}
	}
}
