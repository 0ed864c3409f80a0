package ppv2

import "net/netip"

// MetricsListener is a set of optional callbacks the datagram pipeline
// invokes as it processes packets (§4.4, §6.2). Every method is safe to
// omit by embedding NopListener; the pipeline calls these while holding no
// locks of its own, so implementations must be safe for concurrent use.
type MetricsListener interface {
	OnHeaderParsed(h *ProxyHeader)
	OnParseError(cause error)
	OnCacheHit(client netip.AddrPort)
	OnCacheMiss(client netip.AddrPort)
	OnTrustedProxy(balancer netip.AddrPort)
	OnUntrustedProxy(balancer netip.AddrPort)
	OnLocal(balancer netip.AddrPort)
}

// NopListener implements MetricsListener with no-op methods. Embed it to
// implement only the callbacks of interest.
type NopListener struct{}

func (NopListener) OnHeaderParsed(*ProxyHeader)    {}
func (NopListener) OnParseError(error)              {}
func (NopListener) OnCacheHit(netip.AddrPort)       {}
func (NopListener) OnCacheMiss(netip.AddrPort)      {}
func (NopListener) OnTrustedProxy(netip.AddrPort)   {}
func (NopListener) OnUntrustedProxy(netip.AddrPort) {}
func (NopListener) OnLocal(netip.AddrPort)          {}

var _ MetricsListener = NopListener{}
