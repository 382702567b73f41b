// ABOUTME: Thread-safe TTL set of message ids that already received a reply
// ABOUTME: Stops a second reply when the provider's thread view lags behind our own send

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry tracks when a key was recorded and where it sits in the eviction list.
type entry struct {
	at      time.Time
	element *list.Element
}

// Options configure a Cache
type Options struct {
	TTL     time.Duration
	MaxSize int

	// CleanupInterval defaults to TTL, capped at one minute.
	CleanupInterval time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Cache remembers keys for a fixed TTL, evicting the oldest entry once MaxSize
// is reached. The oldest key is always at the front of order.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweeper.
// A zero TTL yields a cache that never reports a key as seen.
func New(opts Options) *Cache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     opts.Now,
		done:    make(chan struct{}),
	}

	interval := opts.CleanupInterval
	if interval <= 0 {
		interval = opts.TTL
		if interval <= 0 || interval > time.Minute {
			interval = time.Minute
		}
	}
	go c.sweep(interval)
	return c
}

// Seen reports whether key was remembered less than TTL ago
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// Remember records key. Re-remembering refreshes its timestamp.
func (c *Cache) Remember(key string) {
	if c.ttl <= 0 || key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rememberLocked(key)
}

func (c *Cache) rememberLocked(key string) {
	now := c.now()
	if e, ok := c.seen[key]; ok {
		e.at = now
		c.order.MoveToBack(e.element)
		return
	}

	for len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.seen[key] = &entry{at: now, element: c.order.PushBack(key)}
}

// SeenOrRemember atomically checks key and records it when absent.
// Returns true if key was already live.
func (c *Cache) SeenOrRemember(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.liveLocked(key) {
		return true
	}
	if c.ttl > 0 && key != "" {
		c.rememberLocked(key)
	}
	return false
}

// Forget drops key
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.seen[key]; ok {
		c.order.Remove(e.element)
		delete(c.seen, key)
	}
}

// Len returns the number of stored keys, expired ones included until the next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) liveLocked(key string) bool {
	e, ok := c.seen[key]
	if !ok {
		return false
	}
	return c.now().Sub(e.at) < c.ttl
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired walks from the oldest entry and stops at the first live one.
func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		e := c.seen[key]
		if e != nil && now.Sub(e.at) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
