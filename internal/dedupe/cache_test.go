// ABOUTME: Tests for the reply guard TTL cache
// ABOUTME: Validates expiry with a fake clock, eviction order, forget, and concurrent use

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := New(Options{TTL: ttl, MaxSize: maxSize, CleanupInterval: time.Hour, Now: clock.Now})
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_SeenAfterRemember(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.False(t, c.Seen("msg-1"))
	c.Remember("msg-1")
	assert.True(t, c.Seen("msg-1"))
	assert.False(t, c.Seen("msg-2"))
}

func TestCache_Expires(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Remember("msg-1")
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("msg-1"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Seen("msg-1"))
}

func TestCache_RememberRefreshes(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Remember("msg-1")
	clock.Advance(45 * time.Second)
	c.Remember("msg-1")
	clock.Advance(45 * time.Second)

	assert.True(t, c.Seen("msg-1"))
}

func TestCache_EvictsOldest(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 3)

	for i := 1; i <= 4; i++ {
		c.Remember(fmt.Sprintf("msg-%d", i))
	}

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("msg-1"))
	assert.True(t, c.Seen("msg-4"))
}

func TestCache_SeenOrRemember(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.False(t, c.SeenOrRemember("msg-1"))
	assert.True(t, c.SeenOrRemember("msg-1"))
}

func TestCache_Forget(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	c.Remember("msg-1")
	c.Forget("msg-1")
	assert.False(t, c.Seen("msg-1"))
	assert.Equal(t, 0, c.Len())

	c.Forget("never-added")
}

func TestCache_ZeroTTLDisables(t *testing.T) {
	c, _ := newTestCache(t, 0, 10)

	c.Remember("msg-1")
	assert.False(t, c.Seen("msg-1"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_RemoveExpired(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Remember("old")
	clock.Advance(2 * time.Minute)
	c.Remember("new")

	c.removeExpired()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("new"))
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	c.Close()
	c.Close()
}

func TestCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 1000)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d-%d", n, j)
				c.Remember(key)
				_ = c.Seen(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, c.Len())
}
