package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/failsafe/clock"
	"github.com/jonwraymond/failsafe/events"
	"github.com/jonwraymond/failsafe/registry"
)

// Kind is the registry kind of caches.
const Kind = "cache"

// ErrNilCompute is returned by Do when no compute function is supplied.
var ErrNilCompute = errors.New("cache: compute function is nil")

// Metric names emitted on the event bus.
const (
	MetricHit     = "hit"
	MetricMiss    = "miss"
	MetricEvicted = "evicted"
)

// Config configures the cache.
type Config struct {
	// Name identifies the cache in the registry and on the event bus.
	Name string

	// MaxSize caps the number of entries; the least recently used entry is
	// evicted beyond it.
	// Default: 1024
	MaxSize int

	// TTL is how long an entry stays valid after insertion.
	// Default: 5 minutes
	TTL time.Duration

	// Clock overrides the time source. Default: system clock.
	Clock clock.Clock

	// Bus receives metric events. Optional.
	Bus *events.Bus
}

type entry struct {
	key          string
	value        any
	insertedAt   time.Time
	lastAccessed time.Time
}

// Cache is a TTL-expiring, capacity-bounded LRU cache with single-flight
// computation. Concurrent misses for the same key collapse into one
// in-flight build whose result every waiter receives.
type Cache struct {
	registry.Toggle

	clk clock.Clock
	bus *events.Bus
	sf  singleflight.Group

	mu      sync.Mutex
	config  Config
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
}

// New creates a cache.
func New(config Config) *Cache {
	if config.Name == "" {
		config.Name = "cache"
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 1024
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.Clock == nil {
		config.Clock = clock.System()
	}

	return &Cache{
		clk:     config.Clock,
		bus:     config.Bus,
		config:  config,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get retrieves a value. A hit moves the entry to the MRU position; an
// expired entry is removed lazily and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key string) (any, bool) {
	elem, ok := c.entries[key]
	if !ok {
		c.bus.Emit(Kind, c.config.Name, MetricMiss)
		return nil, false
	}

	e := elem.Value.(*entry)
	now := c.clk.Now()
	if now.Sub(e.insertedAt) >= c.config.TTL {
		c.lru.Remove(elem)
		delete(c.entries, key)
		c.bus.Emit(Kind, c.config.Name, MetricMiss)
		return nil, false
	}

	e.lastAccessed = now
	c.lru.MoveToFront(elem)
	c.bus.Emit(Kind, c.config.Name, MetricHit)
	return e.value, true
}

// Set stores a value under key, evicting the LRU entry when full.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.insertedAt = now
		e.lastAccessed = now
		c.lru.MoveToFront(elem)
		return
	}

	if c.lru.Len() >= c.config.MaxSize {
		oldest := c.lru.Back()
		if oldest != nil {
			evicted := oldest.Value.(*entry)
			c.lru.Remove(oldest)
			delete(c.entries, evicted.key)
			c.bus.Emit(Kind, c.config.Name, MetricEvicted)
		}
	}

	c.entries[key] = c.lru.PushFront(&entry{
		key:          key,
		value:        value,
		insertedAt:   now,
		lastAccessed: now,
	})
}

// Delete removes a value. Idempotent.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.Remove(elem)
		delete(c.entries, key)
	}
}

// Len returns the number of entries, including any not yet expired lazily.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Do returns the cached value for key or computes it. Concurrent callers
// for the same key share one in-flight computation: all of them observe the
// winner's value or its error. Errors are never cached.
func (c *Cache) Do(ctx context.Context, key string, compute func(ctx context.Context) (any, error)) (any, error) {
	if compute == nil {
		return nil, ErrNilCompute
	}
	if !c.Enabled() {
		return compute(ctx)
	}

	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		// A winner may have populated the key while we queued.
		if v, ok := c.Get(key); ok {
			return v, nil
		}

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	return v, err
}

// defaultKeyer derives keys for DoKeyed calls.
var defaultKeyer = NewDefaultKeyer()

// DoKeyed is Do with the key derived from the operation name and its input
// tuple via the default keyer, so callers never hand-build keys.
func (c *Cache) DoKeyed(ctx context.Context, operation string, input any, compute func(ctx context.Context) (any, error)) (any, error) {
	key, err := defaultKeyer.Key(operation, input)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, key, compute)
}

// Kind returns "cache".
func (c *Cache) Kind() string { return Kind }

// Name returns the cache name.
func (c *Cache) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Name
}

// Config returns a snapshot of the cache configuration and size.
func (c *Cache) Config() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]any{
		"enabled":  c.Enabled(),
		"max_size": c.config.MaxSize,
		"ttl_secs": c.config.TTL.Seconds(),
		"size":     c.lru.Len(),
	}
}

// UpdateConfig applies the whitelisted ttl_secs field.
func (c *Cache) UpdateConfig(fields map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range fields {
		switch k {
		case "ttl_secs":
			f, ok := registry.AsFloat(v)
			if !ok || f <= 0 {
				return fmt.Errorf("cache: invalid ttl_secs %v", v)
			}
			c.config.TTL = time.Duration(f * float64(time.Second))
		default:
			return fmt.Errorf("%w: %s", registry.ErrFieldNotAllowed, k)
		}
	}
	return nil
}

// Ensure Cache implements registry.Pattern
var _ registry.Pattern = (*Cache)(nil)
