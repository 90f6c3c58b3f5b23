package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	clientTTL     = 10 * time.Minute
	clientCleanup = 5 * time.Minute
)

type client struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter keeps one token bucket per client IP. Idle buckets are
// evicted so the map does not grow with every address ever seen.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	b       int
	done    chan struct{}
	once    sync.Once
}

func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	l := &ClientLimiter{
		clients: make(map[string]*client),
		r:       rate.Limit(rps),
		b:       burst,
		done:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Close stops the eviction goroutine.
func (l *ClientLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *ClientLimiter) cleanupLoop() {
	ticker := time.NewTicker(clientCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.evict(now.Add(-clientTTL))
		}
	}
}

func (l *ClientLimiter) evict(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

func (l *ClientLimiter) reserve(ip string, now time.Time) *rate.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(l.r, l.b)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.lim.ReserveN(now, 1)
}

// Middleware rejects a request with 429 and a Retry-After hint once the
// client's bucket is empty.
func (l *ClientLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := time.Now()
			res := l.reserve(c.RealIP(), now)
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				secs := int(math.Ceil(delay.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// RateLimit returns a middleware that limits requests per IP.
// rps = requests per second, burst = burst capacity.
func RateLimit(rps float64, burst int) echo.MiddlewareFunc {
	return NewClientLimiter(rps, burst).Middleware()
}
