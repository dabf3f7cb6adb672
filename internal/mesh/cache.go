package mesh

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SeenCache is a time-bounded set of processed message IDs. It guarantees
// at-most-once processing of a given message ID locally, not at-most-once
// delivery. Entries are swept on the maintenance cycle rather than with
// per-entry timers.
type SeenCache struct {
	entries   map[string]time.Time
	retention time.Duration
	mu        sync.Mutex
}

// NewSeenCache creates a cache that remembers IDs for the given retention.
func NewSeenCache(retention time.Duration) *SeenCache {
	return &SeenCache{
		entries:   make(map[string]time.Time),
		retention: retention,
	}
}

// Add records the ID. Returns true if the ID was not already present,
// i.e. this is the first time the message is seen.
func (c *SeenCache) Add(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seen, ok := c.entries[id]; ok && time.Since(seen) <= c.retention {
		return false
	}
	c.entries[id] = time.Now()
	return true
}

// Has reports whether the ID is present and unexpired.
func (c *SeenCache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen, ok := c.entries[id]
	return ok && time.Since(seen) <= c.retention
}

// Len returns the number of cached IDs, expired or not.
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes entries older than the retention window.
func (c *SeenCache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, seen := range c.entries {
		if now.Sub(seen) > c.retention {
			delete(c.entries, id)
		}
	}
}

// ResponseLimiter throttles discovery responses per sender address so two
// nodes broadcasting at each other cannot build a response storm. Each
// sender gets a token bucket allowing one response per interval.
type ResponseLimiter struct {
	interval  time.Duration
	retention time.Duration

	senders map[string]*limiterEntry
	mu      sync.Mutex
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewResponseLimiter creates a limiter allowing one response per interval
// per sender. Idle sender entries are swept after the retention window.
func NewResponseLimiter(interval, retention time.Duration) *ResponseLimiter {
	return &ResponseLimiter{
		interval:  interval,
		retention: retention,
		senders:   make(map[string]*limiterEntry),
	}
}

// Allow reports whether a response to the given sender address may be sent
// now, consuming the sender's token if so.
func (l *ResponseLimiter) Allow(senderAddress string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.senders[senderAddress]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.senders[senderAddress] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Len returns the number of tracked sender addresses.
func (l *ResponseLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.senders)
}

// Sweep removes senders idle for longer than the retention window.
func (l *ResponseLimiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for addr, entry := range l.senders {
		if now.Sub(entry.lastSeen) > l.retention {
			delete(l.senders, addr)
		}
	}
}
