package ppv2

import (
	"net/netip"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// BoundedCache is a capacity-bounded, idle-expiring AddressCache (§4.3).
// Built on github.com/jellydator/ttlcache/v3, whose default "touch on hit"
// behavior already satisfies "a successful get... refreshes the entry's
// last-access timestamp," and whose capacity option already evicts the
// least-recently-used entry once an insert would exceed it — no hand
// rolled LRU is needed.
type BoundedCache struct {
	c        *ttlcache.Cache[netip.AddrPort, netip.AddrPort]
	stopOnce sync.Once
}

// NewBoundedCache returns a BoundedCache holding at most maxEntries
// mappings, each absent from Get once idleTTL has elapsed since its last
// access. If idleTTL <= 0, entries never expire on idle (the cache still
// enforces maxEntries), per §4.3.
func NewBoundedCache(maxEntries int, idleTTL time.Duration) *BoundedCache {
	if maxEntries < 1 {
		maxEntries = 1
	}

	opts := []ttlcache.Option[netip.AddrPort, netip.AddrPort]{
		ttlcache.WithCapacity[netip.AddrPort, netip.AddrPort](uint64(maxEntries)),
	}
	if idleTTL > 0 {
		opts = append(opts, ttlcache.WithTTL[netip.AddrPort, netip.AddrPort](idleTTL))
	}

	c := ttlcache.New(opts...)
	go c.Start()

	return &BoundedCache{c: c}
}

// Put implements AddressCache.
func (c *BoundedCache) Put(client, balancer netip.AddrPort) {
	if !client.IsValid() || !balancer.IsValid() {
		return
	}
	c.c.Set(client, balancer, ttlcache.DefaultTTL)
}

// Get implements AddressCache. A successful Get counts as an access and
// refreshes the entry's idle-TTL clock (ttlcache's default touch-on-hit).
func (c *BoundedCache) Get(client netip.AddrPort) (netip.AddrPort, bool) {
	if !client.IsValid() {
		return netip.AddrPort{}, false
	}
	item := c.c.Get(client)
	if item == nil {
		return netip.AddrPort{}, false
	}
	return item.Value(), true
}

// Invalidate implements AddressCache.
func (c *BoundedCache) Invalidate(client netip.AddrPort) {
	c.c.Delete(client)
}

// Clear implements AddressCache.
func (c *BoundedCache) Clear() {
	c.c.DeleteAll()
}

// Close stops the cache's background idle-eviction loop. Safe to call
// more than once.
func (c *BoundedCache) Close() {
	c.stopOnce.Do(c.c.Stop)
}

var _ AddressCache = (*BoundedCache)(nil)
