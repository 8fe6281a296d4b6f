// ABOUTME: Thread-safe TTL cache for deduplicating webhook deliveries.
// ABOUTME: Providers retry deliveries, so repeated delivery IDs must not re-trigger jobs.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the timestamp and list element for a cached delivery ID.
type entry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache tracks recently seen webhook delivery IDs. Entries expire after the
// TTL and the oldest entry is evicted when the cache is at capacity. A
// doubly-linked list keeps insertion order for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // Delivery IDs in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Seen atomically checks whether a delivery ID has been seen and marks it if
// not. Returns true for a duplicate, false when the ID is new and now marked.
func (c *Cache) Seen(deliveryID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[deliveryID]; ok && time.Since(e.timestamp) < c.ttl {
		e.timestamp = time.Now()
		c.order.MoveToBack(e.element)
		return true
	}

	c.mark(deliveryID)
	return false
}

// mark records a delivery ID. Must be called with mu held.
func (c *Cache) mark(deliveryID string) {
	now := time.Now()

	if e, exists := c.seen[deliveryID]; exists {
		e.timestamp = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(deliveryID)
	c.seen[deliveryID] = &entry{
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}

// cleanup periodically removes expired entries until Close.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, e := range c.seen {
		if now.Sub(e.timestamp) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, id)
		}
	}
}

// Len returns the number of tracked delivery IDs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
