package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of one cache's counters.
type Stats struct {
	Size          int    `json:"size"`
	Capacity      int    `json:"capacity"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Expirations   uint64 `json:"expirations"`
	Invalidations uint64 `json:"invalidations"`
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	tags      []string
	elem      *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a bounded TTL+LRU store with tag-group invalidation.
// Exceeding capacity evicts the least-recently-accessed entry. Expiry
// is lazy: each Get/Put runs a sweep over expired entries, throttled to
// at most once per sweep interval, and an expired entry is always
// reported absent on access regardless of the throttle.
type Cache struct {
	mu         sync.Mutex
	name       string
	capacity   int
	defaultTTL time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time

	entries map[string]*entry
	lru     *list.List                     // front = most recently used
	tags    map[string]map[string]struct{} // tag -> keys

	hits          uint64
	misses        uint64
	evictions     uint64
	expirations   uint64
	invalidations uint64
}

// New creates a cache. Capacity must be positive; a zero defaultTTL
// means entries without an explicit TTL never expire. A zero
// sweepInterval disables throttling so every access sweeps.
func New(name string, capacity int, defaultTTL, sweepInterval time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Cache{
		name:       name,
		capacity:   capacity,
		defaultTTL: defaultTTL,
		sweepEvery: sweepInterval,
		entries:    make(map[string]*entry),
		lru:        list.New(),
		tags:       make(map[string]map[string]struct{}),
	}
}

// Name returns the cache's name.
func (c *Cache) Name() string { return c.name }

// Get returns the value for key, or absent. Accessing an entry marks
// it most-recently-used.
func (c *Cache) Get(key string) (any, bool) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeSweep(now)

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(now) {
		c.removeLocked(e)
		c.expirations++
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	c.hits++
	return e.value, true
}

// Put stores value under key. A non-positive ttl falls back to the
// cache default. Tags group the entry for InvalidateByTags.
func (c *Cache) Put(key string, value any, ttl time.Duration, tags ...string) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeSweep(now)

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}
	e := &entry{key: key, value: value, expiresAt: expiresAt, tags: tags}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	for _, t := range tags {
		set, ok := c.tags[t]
		if !ok {
			set = make(map[string]struct{})
			c.tags[t] = set
		}
		set[key] = struct{}{}
	}

	for len(c.entries) > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
		c.evictions++
	}
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	return true
}

// InvalidateByTags removes every entry carrying at least one of the
// given tags and returns the number of removed entries.
func (c *Cache) InvalidateByTags(tags ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, t := range tags {
		for key := range c.tags[t] {
			if e, ok := c.entries[key]; ok {
				c.removeLocked(e)
				removed++
			}
		}
	}
	c.invalidations += uint64(removed)
	return removed
}

// Flush drops every entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.tags = make(map[string]map[string]struct{})
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache) Metrics() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:          len(c.entries),
		Capacity:      c.capacity,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
		Invalidations: c.invalidations,
	}
}

// maybeSweep removes expired entries if the sweep interval has passed.
// Caller holds the lock.
func (c *Cache) maybeSweep(now time.Time) {
	if c.sweepEvery > 0 && now.Sub(c.lastSweep) < c.sweepEvery {
		return
	}
	c.lastSweep = now
	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e)
			c.expirations++
		}
	}
}

// removeLocked unlinks an entry from the map, the LRU list and the tag
// index. Caller holds the lock.
func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru.Remove(e.elem)
	for _, t := range e.tags {
		if set, ok := c.tags[t]; ok {
			delete(set, e.key)
			if len(set) == 0 {
				delete(c.tags, t)
			}
		}
	}
}
