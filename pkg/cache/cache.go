package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value V
	// expiration is zero for items that never expire
	expiration time.Time
}

func (it item[V]) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// Options configures a Cache
type Options struct {
	DefaultTTL time.Duration
	// CleanupInterval enables a background sweep of expired items when > 0
	CleanupInterval time.Duration
	// MaxItems bounds the cache; the item closest to expiry is evicted first
	MaxItems int
	Now      func() time.Time
}

// Cache is a thread-safe in-memory cache with expiration
type Cache[K comparable, V any] struct {
	items      map[K]item[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
	maxItems   int
	now        func() time.Time
	onEvicted  func(K, V)

	stopOnce sync.Once
	stop     chan struct{}
}

func New[K comparable, V any](opts Options) *Cache[K, V] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache[K, V]{
		items:      make(map[K]item[V]),
		defaultTTL: opts.DefaultTTL,
		maxItems:   opts.MaxItems,
		now:        opts.Now,
		stop:       make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go c.startCleanupTimer(opts.CleanupInterval)
	}

	return c
}

// Set adds an item with the default TTL
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL adds an item that expires after ttl, or never when ttl <= 0
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = item[V]{value: value, expiration: exp}
}

// Get returns a live item
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, found := c.items[key]
	if !found || it.expired(c.now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, found := c.items[key]; found && c.onEvicted != nil {
		c.onEvicted(key, it.value)
	}
	delete(c.items, key)
}

// Flush removes all items
func (c *Cache[K, V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvicted != nil {
		for k, v := range c.items {
			c.onEvicted(k, v.value)
		}
	}
	c.items = make(map[K]item[V])
}

// Count returns the number of items, expired ones included
func (c *Cache[K, V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// SetOnEvicted sets the callback run, under the cache lock, when an item leaves the cache
func (c *Cache[K, V]) SetOnEvicted(f func(K, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvicted = f
}

// Close stops the background sweep
func (c *Cache[K, V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[K, V]) startCleanupTimer(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.DeleteExpired()
		}
	}
}

// DeleteExpired removes every expired item
func (c *Cache[K, V]) DeleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.items {
		if v.expired(now) {
			if c.onEvicted != nil {
				c.onEvicted(k, v.value)
			}
			delete(c.items, k)
		}
	}
}

// evictOldest removes the item closest to expiry, preferring expiring items over permanent ones
func (c *Cache[K, V]) evictOldest() {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for k, v := range c.items {
		switch {
		case !found:
			oldestKey, oldest, found = k, v.expiration, true
		case oldest.IsZero() && !v.expiration.IsZero():
			oldestKey, oldest = k, v.expiration
		case !v.expiration.IsZero() && v.expiration.Before(oldest):
			oldestKey, oldest = k, v.expiration
		}
	}
	if !found {
		return
	}

	if c.onEvicted != nil {
		c.onEvicted(oldestKey, c.items[oldestKey].value)
	}
	delete(c.items, oldestKey)
}
