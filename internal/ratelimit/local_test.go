package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLocal_RejectedAtResetInstant(t *testing.T) {
	clock := newFakeClock()
	l := NewLocal(WithClock(clock.Now))
	rule := Rule{Name: "test", Window: time.Minute, Max: 1}
	ctx := context.Background()

	d, err := l.Check(ctx, "1.2.3.4:/donate", rule)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// Exactly at the reset time the old window still counts.
	clock.Advance(time.Minute)
	d, err = l.Check(ctx, "1.2.3.4:/donate", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Duration(0), d.RetryAfter)
	assert.Equal(t, 1, d.RetryAfterSeconds())
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, Decision{Allowed: true}.RetryAfterSeconds())
	assert.Equal(t, 1, Decision{}.RetryAfterSeconds())
	assert.Equal(t, 1, Decision{RetryAfter: 10 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 3, Decision{RetryAfter: 2100 * time.Millisecond}.RetryAfterSeconds())
}

func TestLocal_WindowReset(t *testing.T) {
	clock := newFakeClock()
	l := NewLocal(WithClock(clock.Now))
	rule := Rule{Name: "test", Window: time.Minute, Max: 5}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, "1.2.3.4:/donate", rule)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 4-i, d.Remaining)
		clock.Advance(time.Second)
	}

	d, err := l.Check(ctx, "1.2.3.4:/donate", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.RetryAfter > 0)
	assert.Equal(t, 55, d.RetryAfterSeconds())

	clock.Advance(time.Minute)

	d, err = l.Check(ctx, "1.2.3.4:/donate", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLocal_RetryAfterRoundsUp(t *testing.T) {
	clock := newFakeClock()
	l := NewLocal(WithClock(clock.Now))
	rule := Rule{Name: "test", Window: time.Minute, Max: 1}
	ctx := context.Background()

	_, _ = l.Check(ctx, "id", rule)
	clock.Advance(500 * time.Millisecond)

	d, _ := l.Check(ctx, "id", rule)
	assert.False(t, d.Allowed)
	assert.Equal(t, 60, d.RetryAfterSeconds())
}

func TestLocal_IdentifiersAndRulesAreIndependent(t *testing.T) {
	l := NewLocal(WithClock(newFakeClock().Now))
	ctx := context.Background()

	for i := 0; i < Strict.Max; i++ {
		d, _ := l.Check(ctx, Identifier("1.1.1.1", "/send-receipt"), Strict)
		assert.True(t, d.Allowed)
	}
	d, _ := l.Check(ctx, Identifier("1.1.1.1", "/send-receipt"), Strict)
	assert.False(t, d.Allowed)

	d, _ = l.Check(ctx, Identifier("1.1.1.1", "/create"), Strict)
	assert.True(t, d.Allowed)

	d, _ = l.Check(ctx, Identifier("2.2.2.2", "/send-receipt"), Strict)
	assert.True(t, d.Allowed)

	d, _ = l.Check(ctx, Identifier("1.1.1.1", "/send-receipt"), General)
	assert.True(t, d.Allowed)
}

func TestLocal_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := NewLocal(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = l.Check(ctx, "a", Rule{Name: "short", Window: time.Second, Max: 1})
	_, _ = l.Check(ctx, "b", Rule{Name: "long", Window: time.Hour, Max: 1})
	require.Equal(t, 2, l.Len())

	clock.Advance(2 * time.Second)
	l.Sweep()
	assert.Equal(t, 1, l.Len())
}

func TestLocal_RunStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	l := NewLocal(WithClock(clock.Now), WithSweepInterval(5*time.Millisecond))
	_, _ = l.Check(context.Background(), "a", Rule{Name: "short", Window: time.Second, Max: 1})
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNoLimiter(t *testing.T) {
	var l NoLimiter
	for i := 0; i < 1000; i++ {
		d, err := l.Check(context.Background(), "", Strict)
		assert.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}
