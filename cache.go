package ppv2

import (
	"net/netip"
	"sync"
)

// AddressCache maps a client address to the balancer address it was last
// observed arriving from (§3, §4.3). Implementations must be safe for
// concurrent use by any number of goroutines.
//
// Per Design Note §9, this is modeled as an interface with exactly two
// concrete implementations (UnboundedCache, BoundedCache) rather than a
// deeper hierarchy.
type AddressCache interface {
	// Put records client -> balancer, replacing any prior value for
	// client. Silently ignores either argument being the zero value.
	Put(client, balancer netip.AddrPort)
	// Get returns the current balancer address for client, or
	// (netip.AddrPort{}, false) if absent.
	Get(client netip.AddrPort) (netip.AddrPort, bool)
	// Invalidate removes the entry for client, if any.
	Invalidate(client netip.AddrPort)
	// Clear removes all entries.
	Clear()
}

// UnboundedCache is a thread-safe, unbounded AddressCache: entries persist
// until explicitly removed. Built on sync.Map, whose documented
// happens-before semantics already give the "no torn values under
// concurrent Put" guarantee §8 requires — no third-party concurrent map
// appears anywhere in this module's reference corpus, so stdlib is the
// idiomatic choice here, not a fallback.
type UnboundedCache struct {
	m sync.Map // netip.AddrPort -> netip.AddrPort
}

// NewUnboundedCache returns a ready-to-use UnboundedCache.
func NewUnboundedCache() *UnboundedCache { return &UnboundedCache{} }

// Put implements AddressCache.
func (c *UnboundedCache) Put(client, balancer netip.AddrPort) {
	if !client.IsValid() || !balancer.IsValid() {
		return
	}
	c.m.Store(client, balancer)
}

// Get implements AddressCache.
func (c *UnboundedCache) Get(client netip.AddrPort) (netip.AddrPort, bool) {
	if !client.IsValid() {
		return netip.AddrPort{}, false
	}
	v, ok := c.m.Load(client)
	if !ok {
		return netip.AddrPort{}, false
	}
	return v.(netip.AddrPort), true
}

// Invalidate implements AddressCache.
func (c *UnboundedCache) Invalidate(client netip.AddrPort) {
	c.m.Delete(client)
}

// Clear implements AddressCache.
func (c *UnboundedCache) Clear() {
	c.m.Range(func(key, _ any) bool {
		c.m.Delete(key)
		return true
	})
}

var _ AddressCache = (*UnboundedCache)(nil)
