// Package ppv2prom provides a Prometheus-backed ppv2.MetricsListener.
package ppv2prom

import (
	"errors"
	"net/netip"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaymesh/ppv2"
)

// Listener is a ppv2.MetricsListener that reports every pipeline event as
// a Prometheus counter. The zero value is not usable; construct one with
// New.
type Listener struct {
	headersParsed    prometheus.Counter
	parseErrors      *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	trustedProxies   prometheus.Counter
	untrustedProxies prometheus.Counter
	local            prometheus.Counter
}

// New builds a Listener and registers its counters with reg. Passing nil
// uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Listener {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	l := &Listener{
		headersParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppv2_headers_parsed_total",
			Help: "Total number of PPv2 headers successfully decoded.",
		}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppv2_parse_errors_total",
			Help: "Total number of datagrams that failed PPv2 decoding, by cause.",
		}, []string{"cause"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppv2_cache_hits_total",
			Help: "Total number of Send calls resolved via the address cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppv2_cache_misses_total",
			Help: "Total number of Send calls dropped for a missing cache entry.",
		}),
		trustedProxies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppv2_trusted_proxy_total",
			Help: "Total number of datagrams accepted from a trusted balancer.",
		}),
		untrustedProxies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppv2_untrusted_proxy_total",
			Help: "Total number of datagrams rejected by the trust predicate.",
		}),
		local: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppv2_local_total",
			Help: "Total number of LOCAL-command headers received.",
		}),
	}

	reg.MustRegister(
		l.headersParsed,
		l.parseErrors,
		l.cacheHits,
		l.cacheMisses,
		l.trustedProxies,
		l.untrustedProxies,
		l.local,
	)

	return l
}

func (l *Listener) OnHeaderParsed(*ppv2.ProxyHeader) {
	l.headersParsed.Inc()
}

func (l *Listener) OnParseError(cause error) {
	l.parseErrors.WithLabelValues(causeLabel(cause)).Inc()
}

func (l *Listener) OnCacheHit(netip.AddrPort) {
	l.cacheHits.Inc()
}

func (l *Listener) OnCacheMiss(netip.AddrPort) {
	l.cacheMisses.Inc()
}

func (l *Listener) OnTrustedProxy(netip.AddrPort) {
	l.trustedProxies.Inc()
}

func (l *Listener) OnUntrustedProxy(netip.AddrPort) {
	l.untrustedProxies.Inc()
}

func (l *Listener) OnLocal(netip.AddrPort) {
	l.local.Inc()
}

var _ ppv2.MetricsListener = (*Listener)(nil)

// causeLabel reduces a decode error to a low-cardinality label value,
// falling back to "other" for any error not matched below (including
// ppv2.ErrInvalidAddress and ppv2.ErrInvalidArgument).
func causeLabel(cause error) string {
	switch {
	case errors.Is(cause, ppv2.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(cause, ppv2.ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(cause, ppv2.ErrInvalidCommand):
		return "invalid_command"
	case errors.Is(cause, ppv2.ErrInvalidFamily):
		return "invalid_family"
	case errors.Is(cause, ppv2.ErrInvalidTransport):
		return "invalid_transport"
	case errors.Is(cause, ppv2.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(cause, ppv2.ErrTruncatedAddress):
		return "truncated_address"
	case errors.Is(cause, ppv2.ErrTruncatedTlv):
		return "truncated_tlv"
	default:
		return "other"
	}
}
