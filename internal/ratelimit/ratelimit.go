package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	mu         sync.Mutex
	clock      clock.Clock
	tokens     int
	capacity   int
	rate       int // tokens per second
	lastRefill time.Time
	lastSeen   time.Time
}

// NewTokenBucket creates a full bucket refilling at rate tokens per second.
func NewTokenBucket(clk clock.Clock, rate, capacity int) *TokenBucket {
	now := clk.Now()
	return &TokenBucket{
		clock:      clk,
		tokens:     capacity,
		capacity:   capacity,
		rate:       rate,
		lastRefill: now,
		lastSeen:   now,
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.Now()
	tb.lastSeen = now

	tokensToAdd := int(now.Sub(tb.lastRefill).Seconds() * float64(tb.rate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens >= tb.capacity {
			tb.tokens = tb.capacity
			tb.lastRefill = now
		} else {
			// keep the fractional remainder for the next refill
			tb.lastRefill = tb.lastRefill.Add(time.Duration(tokensToAdd) * time.Second / time.Duration(tb.rate))
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastSeen)
}

// Config holds rates in tokens per second; zero disables that limit.
type Config struct {
	GlobalConnections int
	ClientConnections int
	GlobalRequests    int
	ClientRequests    int
	Burst             int
}

// Enabled reports whether any limit is configured.
func (c Config) Enabled() bool {
	return c.GlobalConnections > 0 || c.ClientConnections > 0 || c.GlobalRequests > 0 || c.ClientRequests > 0
}

// RateLimiter manages both global and per-client rate limiting. Connections
// are stream registrations, requests are everything else that mutates state.
type RateLimiter struct {
	mu                    sync.Mutex
	clock                 clock.Clock
	cfg                   Config
	globalConnLimiter     *TokenBucket
	globalReqLimiter      *TokenBucket
	perClientConnLimiters map[string]*TokenBucket
	perClientReqLimiters  map[string]*TokenBucket
}

func New(cfg Config, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	rl := &RateLimiter{
		clock:                 clk,
		cfg:                   cfg,
		perClientConnLimiters: make(map[string]*TokenBucket),
		perClientReqLimiters:  make(map[string]*TokenBucket),
	}
	if cfg.GlobalConnections > 0 {
		rl.globalConnLimiter = NewTokenBucket(clk, cfg.GlobalConnections, cfg.Burst)
	}
	if cfg.GlobalRequests > 0 {
		rl.globalReqLimiter = NewTokenBucket(clk, cfg.GlobalRequests, cfg.Burst)
	}
	return rl
}

// AllowConnection checks if a stream registration is allowed for the client.
func (rl *RateLimiter) AllowConnection(client string) bool {
	return rl.allow(rl.globalConnLimiter, rl.perClientConnLimiters, rl.cfg.ClientConnections, client)
}

// AllowRequest checks if a request is allowed for the client.
func (rl *RateLimiter) AllowRequest(client string) bool {
	return rl.allow(rl.globalReqLimiter, rl.perClientReqLimiters, rl.cfg.ClientRequests, client)
}

// allow asks the client's bucket first so a client over its own limit does
// not drain the shared one.
func (rl *RateLimiter) allow(global *TokenBucket, perClient map[string]*TokenBucket, rate int, client string) bool {
	if rate > 0 {
		rl.mu.Lock()
		bucket, ok := perClient[client]
		if !ok {
			bucket = NewTokenBucket(rl.clock, rate, rl.cfg.Burst)
			perClient[client] = bucket
		}
		rl.mu.Unlock()
		if !bucket.Allow() {
			return false
		}
	}
	return global == nil || global.Allow()
}

// Sweep forgets per-client buckets unused for at least idle and returns how
// many were removed.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	now := rl.clock.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for _, m := range []map[string]*TokenBucket{rl.perClientConnLimiters, rl.perClientReqLimiters} {
		for client, bucket := range m {
			if bucket.idleSince(now) >= idle {
				delete(m, client)
				removed++
			}
		}
	}
	return removed
}

// Clients returns the number of tracked per-client buckets.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.perClientConnLimiters) + len(rl.perClientReqLimiters)
}
