package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/burnssa/superjective-extension/internal/config"
	"golang.org/x/time/rate"
)

const idleBucketTTL = time.Hour

// Limiter applies a token bucket per client key (usually the remote IP)
type Limiter struct {
	config  config.RateLimitConfig
	clients map[string]*client
	mu      sync.Mutex
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a new rate limiter
func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		config:  cfg,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client is allowed
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	enabled := l.config.Enabled
	l.mu.Unlock()
	if !enabled {
		return true
	}
	return l.get(key).AllowN(l.now(), 1)
}

// Update swaps in new limits. Existing buckets are dropped so every client
// starts over under the new rate.
func (l *Limiter) Update(cfg config.RateLimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = cfg
	l.clients = make(map[string]*client)
}

// Tokens returns the tokens left in a client's bucket, or the burst size for a
// client that has not been seen yet.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	c, ok := l.clients[key]
	burst := l.burst()
	l.mu.Unlock()
	if !ok {
		return float64(burst)
	}
	return c.limiter.TokensAt(l.now())
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if c, ok := l.clients[key]; ok {
		c.lastSeen = now
		return c.limiter
	}

	perSecond := rate.Limit(float64(l.config.RequestsPerMin) / 60.0)
	c := &client{limiter: rate.NewLimiter(perSecond, l.burst()), lastSeen: now}
	l.clients[key] = c
	return c.limiter
}

func (l *Limiter) burst() int {
	if l.config.Burst > 0 {
		return l.config.Burst
	}
	return max(1, l.config.RequestsPerMin)
}

// Cleanup removes buckets of clients idle for longer than an hour
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleBucketTTL)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Run cleans up idle buckets every interval until ctx is done
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
