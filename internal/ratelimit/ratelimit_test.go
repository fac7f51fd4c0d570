package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)} }

func newRedisStore(t *testing.T, clk *clock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewRedisStore(rdb, "")
	s.now = clk.Now
	return s, mr
}

// exerciseSlidingWindow runs the same scenario against every store.
func exerciseSlidingWindow(t *testing.T, store Store, clk *clock) {
	ctx := context.Background()
	l, err := New(store, 3, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, res.Remaining)
		clk.Advance(10 * time.Second)
	}

	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "request max+1 inside the window")
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30*time.Second, res.RetryAfter(clk.Now()))

	other, err := l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	// The first request leaves the window; one slot opens.
	clk.Advance(31 * time.Second)
	res, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestMemoryStore_SlidingWindow(t *testing.T) {
	clk := newClock()
	s := NewMemoryStore()
	s.now = clk.Now
	exerciseSlidingWindow(t, s, clk)
}

func TestRedisStore_SlidingWindow(t *testing.T) {
	clk := newClock()
	s, _ := newRedisStore(t, clk)
	exerciseSlidingWindow(t, s, clk)
}

func TestMemoryStore_SweepsIdleKeys(t *testing.T) {
	clk := newClock()
	s := NewMemoryStore()
	s.now = clk.Now
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := s.Allow(ctx, key, 5, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())

	clk.Advance(2 * time.Minute)
	_, err := s.Allow(ctx, "d", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	l, err := New(s, 50, time.Hour)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "shared")
			if assert.NoError(t, err) && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestRedisStore_ExpiresKey(t *testing.T) {
	clk := newClock()
	s, mr := newRedisStore(t, clk)

	_, err := s.Allow(context.Background(), "k", 10, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists("ratelimit:k"))
	assert.Equal(t, 5*time.Minute, mr.TTL("ratelimit:k"))

	mr.FastForward(6 * time.Minute)
	assert.False(t, mr.Exists("ratelimit:k"))
}

func TestRedisStore_RejectionsDoNotOccupyWindow(t *testing.T) {
	clk := newClock()
	s, mr := newRedisStore(t, clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := s.Allow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		clk.Advance(10 * time.Second)
	}
	for i := 0; i < 5; i++ {
		res, err := s.Allow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.WithinDuration(t, clk.Now().Add(40*time.Second), res.Reset, 0)
	}
	members, err := mr.ZMembers("ratelimit:k")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// Only the first request has left the window: exactly one slot opens.
	clk.Advance(41 * time.Second)
	res, err := s.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = s.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRedisStore_Unavailable(t *testing.T) {
	clk := newClock()
	s, mr := newRedisStore(t, clk)
	mr.Close()

	_, err := s.Allow(context.Background(), "k", 10, time.Minute)
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, 1, time.Second)
	assert.Error(t, err)
	_, err = New(NewMemoryStore(), 0, time.Second)
	assert.Error(t, err)
	_, err = New(NewMemoryStore(), 1, 0)
	assert.Error(t, err)
}
