package firms

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
	"github.com/couchcryptid/wildfire-data-service/internal/observability"
)

// CachedAvailability wraps an AvailabilityLookup with a TTL cache keyed by
// credential and sensor set. Failures are never cached. A zero TTL disables
// caching. Callers receive copies, so mutating a result does not affect the
// cache.
type CachedAvailability struct {
	inner   AvailabilityLookup
	mapKey  string
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

type cacheKey struct {
	mapKey string
	sensor string
}

type cacheEntry struct {
	value   domain.Availability
	expires time.Time
}

// NewCachedAvailability creates a cache decorator around an availability lookup.
func NewCachedAvailability(inner AvailabilityLookup, mapKey string, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedAvailability {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedAvailability{
		inner:   inner,
		mapKey:  mapKey,
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (c *CachedAvailability) Availability(ctx context.Context, sensor string) (domain.Availability, error) {
	if sensor == "" {
		sensor = AllSensors
	}
	if c.ttl <= 0 {
		return c.inner.Availability(ctx, sensor)
	}

	key := cacheKey{mapKey: c.mapKey, sensor: sensor}
	if v, ok := c.get(key); ok {
		c.metrics.AvailabilityCache.WithLabelValues("hit").Inc()
		return v, nil
	}
	c.metrics.AvailabilityCache.WithLabelValues("miss").Inc()

	v, err := c.inner.Availability(ctx, sensor)
	if err != nil {
		return nil, err
	}
	c.put(key, v)
	return maps.Clone(v), nil
}

func (c *CachedAvailability) get(key cacheKey) (domain.Availability, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return maps.Clone(e.value), true
}

func (c *CachedAvailability) put(key cacheKey, v domain.Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: maps.Clone(v), expires: c.clock.Now().Add(c.ttl)}
}
