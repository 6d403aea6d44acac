// ABOUTME: TTL and size bounded cache of packet fingerprints already relayed
// ABOUTME: Oldest entries are evicted first; a background sweep drops expired ones

package relay

import (
	"container/list"
	"sync"
	"time"
)

type seenEntry struct {
	at      time.Time
	element *list.Element
}

// seenCache remembers fingerprints for ttl, holding at most maxSize entries.
type seenCache struct {
	mu      sync.Mutex
	seen    map[string]*seenEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

func newSeenCache(ttl time.Duration, maxSize int, sweep time.Duration) *seenCache {
	c := &seenCache{
		seen:    make(map[string]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if sweep > 0 {
		go c.sweepLoop(sweep)
	}
	return c
}

// checkAndMark reports whether key was seen within ttl, marking it if not.
func (c *seenCache) checkAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.seen[key]; ok {
		if now.Sub(e.at) < c.ttl {
			return true
		}
		e.at = now
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.seen, front.Value.(string))
		}
	}
	c.seen[key] = &seenEntry{at: now, element: c.order.PushBack(key)}
	return false
}

func (c *seenCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *seenCache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired entries.
func (c *seenCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.seen {
		if now.Sub(e.at) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
	}
}

// close stops the sweep goroutine. Safe to call more than once.
func (c *seenCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
