package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(policies map[string]Policy) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(policies)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	rl, clock := newTestLimiter(map[string]Policy{ActionWithdraw: PerHour(3)})

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("user-1", ActionWithdraw)
		assert.True(t, ok, "attempt %d", i+1)
	}

	ok, wait := rl.Allow("user-1", ActionWithdraw)
	assert.False(t, ok)
	assert.Equal(t, 20*time.Minute, wait)

	clock.advance(20 * time.Minute)
	ok, _ = rl.Allow("user-1", ActionWithdraw)
	assert.True(t, ok)

	ok, _ = rl.Allow("user-1", ActionWithdraw)
	assert.False(t, ok)
}

func TestRateLimiter_BucketsAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(map[string]Policy{ActionWithdraw: PerHour(1)})

	ok, _ := rl.Allow("user-1", ActionWithdraw)
	assert.True(t, ok)
	ok, _ = rl.Allow("user-1", ActionWithdraw)
	assert.False(t, ok)

	ok, _ = rl.Allow("user-2", ActionWithdraw)
	assert.True(t, ok)
	ok, _ = rl.Allow("user-1", "other")
	assert.True(t, ok)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(map[string]Policy{ActionWithdraw: PerHour(1)})

	rl.Allow("user-1", ActionWithdraw)
	clock.advance(2 * time.Hour)
	rl.Cleanup(time.Hour)

	ok, _ := rl.Allow("user-1", ActionWithdraw)
	assert.True(t, ok, "an evicted bucket starts full again")
}
