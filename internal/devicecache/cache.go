// Package devicecache holds a time-bounded copy of the device registry.
package devicecache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jwulff/mainstream-sync/internal/domain"
)

// DefaultTTL is how long a fetched device list stays fresh.
const DefaultTTL = 5 * time.Minute

// Registry lists registered devices.
type Registry interface {
	ListDevices(ctx context.Context) ([]domain.Registration, error)
}

type snapshot struct {
	devices   []domain.Device
	fetchedAt time.Time
}

// Cache serves the complete registered devices, refreshing from the registry
// once the cached list is older than the TTL.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// New creates a cache. A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl: ttl,
		now: time.Now,
	}
}

// WithClock replaces the cache clock. Used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// TTL returns the freshness bound.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached devices, refreshing them first when the cache is
// empty or stale. On a registry error the stale list (possibly empty) is
// returned together with the error.
func (c *Cache) Get(ctx context.Context, registry Registry) ([]domain.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	snap := c.current.Load()
	if snap != nil && len(snap.devices) > 0 && now.Sub(snap.fetchedAt) <= c.ttl {
		return copyDevices(snap.devices), nil
	}

	regs, err := registry.ListDevices(ctx)
	if err != nil {
		var stale []domain.Device
		if snap != nil {
			stale = copyDevices(snap.devices)
		}
		return stale, fmt.Errorf("failed to list devices: %w", err)
	}

	fetchedAt := now
	if snap != nil && snap.fetchedAt.After(fetchedAt) {
		fetchedAt = snap.fetchedAt
	}
	next := &snapshot{
		devices:   domain.CompleteDevices(regs),
		fetchedAt: fetchedAt,
	}
	c.current.Store(next)

	return copyDevices(next.devices), nil
}

// Snapshot returns the cached devices and when they were fetched without
// touching the registry.
func (c *Cache) Snapshot() ([]domain.Device, time.Time) {
	snap := c.current.Load()
	if snap == nil {
		return nil, time.Time{}
	}
	return copyDevices(snap.devices), snap.fetchedAt
}

// Invalidate forces the next Get to refresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store(nil)
}

func copyDevices(devices []domain.Device) []domain.Device {
	out := make([]domain.Device, len(devices))
	copy(out, devices)
	return out
}
