package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucket(t *testing.T) {
	clk := clock.NewMock()
	bucket := NewTokenBucket(clk, 2, 5) // 2 tokens per second, capacity of 5

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "initial request %d", i)
	}
	assert.False(t, bucket.Allow(), "bucket should be empty")

	clk.Add(1100 * time.Millisecond)

	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())

	// never refills past capacity
	clk.Add(time.Hour)
	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow())
	}
	assert.False(t, bucket.Allow())
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := New(Config{ClientConnections: 2, ClientRequests: 5, Burst: 3}, clock.NewMock())
	client := "10.0.0.1"

	for i := 0; i < 3; i++ {
		assert.True(t, rl.AllowConnection(client), "connection %d", i)
	}
	assert.False(t, rl.AllowConnection(client))

	for i := 0; i < 3; i++ {
		assert.True(t, rl.AllowRequest(client), "request %d", i)
	}
	assert.False(t, rl.AllowRequest(client))

	other := "10.0.0.2"
	assert.True(t, rl.AllowConnection(other))
	assert.True(t, rl.AllowRequest(other))
}

func TestRateLimiterGlobal(t *testing.T) {
	rl := New(Config{GlobalConnections: 2, GlobalRequests: 2, Burst: 2}, clock.NewMock())

	assert.True(t, rl.AllowConnection("a"))
	assert.True(t, rl.AllowConnection("b"))
	assert.False(t, rl.AllowConnection("a"))

	assert.True(t, rl.AllowRequest("a"))
	assert.True(t, rl.AllowRequest("b"))
	assert.False(t, rl.AllowRequest("c"))
	assert.Zero(t, rl.Clients())
}

func TestRateLimiterSweep(t *testing.T) {
	clk := clock.NewMock()
	rl := New(Config{ClientConnections: 1, ClientRequests: 1, Burst: 1}, clk)

	rl.AllowConnection("client1")
	rl.AllowRequest("client1")
	rl.AllowConnection("client2")
	rl.AllowRequest("client2")
	assert.Equal(t, 4, rl.Clients())

	clk.Add(5 * time.Minute)
	rl.AllowConnection("client1")
	rl.AllowRequest("client1")
	clk.Add(6 * time.Minute)

	assert.Equal(t, 2, rl.Sweep(10*time.Minute))
	assert.Equal(t, 2, rl.Clients())

	rl.mu.Lock()
	_, kept := rl.perClientConnLimiters["client1"]
	_, gone := rl.perClientConnLimiters["client2"]
	rl.mu.Unlock()
	assert.True(t, kept)
	assert.False(t, gone)
}

func TestRateLimiterDisabled(t *testing.T) {
	cfg := Config{Burst: 5}
	assert.False(t, cfg.Enabled())
	rl := New(cfg, nil)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.AllowConnection("c"))
		assert.True(t, rl.AllowRequest("c"))
	}
}

func TestTokenBucketKeepsFractionalRefill(t *testing.T) {
	clk := clock.NewMock()
	bucket := NewTokenBucket(clk, 2, 5)
	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow())
	}

	clk.Add(700 * time.Millisecond) // 1.4 tokens
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())

	clk.Add(300 * time.Millisecond) // 0.4 left over + 0.6
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())
}

func TestRefusedClientKeepsGlobalTokens(t *testing.T) {
	clk := clock.NewMock()
	rl := New(Config{GlobalRequests: 2, ClientRequests: 1, Burst: 2}, clk)

	assert.True(t, rl.AllowRequest("a"))
	assert.True(t, rl.AllowRequest("a"))
	assert.False(t, rl.AllowRequest("b"), "global bucket drained")

	clk.Add(time.Second) // global +2, a +1
	assert.True(t, rl.AllowRequest("a"))
	assert.False(t, rl.AllowRequest("a"), "a is over its own limit")
	assert.True(t, rl.AllowRequest("b"), "a's refusal must not cost a global token")
}
