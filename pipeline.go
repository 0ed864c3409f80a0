package ppv2

import (
	"net"
	"net/netip"

	"go.uber.org/zap"
)

// Datagram is one UDP packet as seen by the application, after Endpoint has
// stripped any PPv2 preamble. Addr is the apparent source on a packet
// returned from Receive, or the intended destination on a packet passed to
// Send (§4.4).
type Datagram struct {
	Data []byte
	Addr netip.AddrPort
}

// EndpointBuilder accumulates an Endpoint's collaborators. Per Design Note
// §9, Build returns an immutable *Endpoint whose fields the hot path
// dereferences with no synchronization — all mutation happens here, before
// Build.
type EndpointBuilder struct {
	conn      net.PacketConn
	cache     AddressCache
	metrics   MetricsListener
	trust     TrustPredicate
	logger    *zap.Logger
	parseTLVs bool
	strictTLV bool
}

// NewEndpoint begins building an Endpoint around the given underlying UDP
// socket (typically a *net.UDPConn, but any net.PacketConn is accepted).
func NewEndpoint(conn net.PacketConn) *EndpointBuilder {
	return &EndpointBuilder{conn: conn}
}

// WithCache configures the reverse-mapping AddressCache consulted on Send
// and populated on Receive. Without one, Send forwards every datagram
// unchanged (§4.4).
func (b *EndpointBuilder) WithCache(c AddressCache) *EndpointBuilder {
	b.cache = c
	return b
}

// WithMetrics configures the MetricsListener invoked for pipeline events.
// Without one, events are silently dropped.
func (b *EndpointBuilder) WithMetrics(m MetricsListener) *EndpointBuilder {
	b.metrics = m
	return b
}

// WithTrust configures the predicate deciding whether a sender is
// authorized to speak PPv2 to this endpoint. Without one, every sender is
// trusted.
func (b *EndpointBuilder) WithTrust(t TrustPredicate) *EndpointBuilder {
	b.trust = t
	return b
}

// WithLogger configures structured logging for routine pipeline events.
// Without one, the endpoint is silent.
func (b *EndpointBuilder) WithLogger(l *zap.Logger) *EndpointBuilder {
	b.logger = l
	return b
}

// WithTLVs requests that Receive parse the TLV region of each header
// (lenient mode), surfaced via MetricsListener.OnHeaderParsed. Without it,
// TLVs are never parsed on the receive hot path.
func (b *EndpointBuilder) WithTLVs() *EndpointBuilder {
	b.parseTLVs = true
	return b
}

// WithStrictTLV requests strict TLV parsing (§4.1, §9 Open Questions).
// Implies WithTLVs.
func (b *EndpointBuilder) WithStrictTLV() *EndpointBuilder {
	b.parseTLVs = true
	b.strictTLV = true
	return b
}

// Build returns the immutable Endpoint. Returns ErrInvalidArgument if no
// underlying socket was provided.
func (b *EndpointBuilder) Build() (*Endpoint, error) {
	if b.conn == nil {
		return nil, ErrInvalidArgument
	}

	metrics := b.metrics
	if metrics == nil {
		metrics = NopListener{}
	}

	logger := b.logger
	if logger == nil {
		logger = defaultLogger()
	}

	return &Endpoint{
		conn:      b.conn,
		cache:     b.cache,
		metrics:   metrics,
		trust:     b.trust,
		logger:    logger,
		parseTLVs: b.parseTLVs,
		strictTLV: b.strictTLV,
	}, nil
}

// Endpoint wraps an underlying UDP socket, rewriting the apparent source of
// received PPv2-bearing packets to the real client address, and the
// destination of sent packets to the balancer through which that client was
// last seen (§4.4). Endpoint owns no background goroutine: Receive and Send
// execute entirely on the caller's goroutine, inheriting its concurrency
// model (§5).
type Endpoint struct {
	conn      net.PacketConn
	cache     AddressCache
	metrics   MetricsListener
	trust     TrustPredicate
	logger    *zap.Logger
	parseTLVs bool
	strictTLV bool
}

// Close closes the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// Receive reads one datagram into buf via the underlying socket and applies
// the algorithm in §4.4: an untrusted or unparsable sender is delivered
// verbatim; a trusted, well-formed PROXY/DGRAM header with a source address
// updates the AddressCache and rewrites the apparent source; a LOCAL header
// is stripped with no cache update. buf must be large enough for the
// largest datagram the application expects to receive; Receive does not
// retain a reference to it after returning.
func (e *Endpoint) Receive(buf []byte) (*Datagram, error) {
	n, addr, err := e.conn.ReadFrom(buf)
	if err != nil {
		return nil, err
	}

	balancer, err := addrPortFromNetAddr(addr)
	if err != nil {
		return nil, err
	}

	return e.processDatagram(buf[:n], balancer), nil
}

// processDatagram applies the §4.4 receive algorithm to one already-read
// datagram. Shared by Receive and the batched path in batch.go so both
// read strategies funnel through identical decode/cache/trust logic.
func (e *Endpoint) processDatagram(buf []byte, balancer netip.AddrPort) *Datagram {
	if e.trust != nil && !e.trust(balancer) {
		e.metrics.OnUntrustedProxy(balancer)
		e.logger.Warn("ppv2: untrusted sender", zap.Stringer("balancer", balancer))
		return &Datagram{Data: buf, Addr: balancer}
	}

	var opts []DecodeOption
	if e.strictTLV {
		opts = append(opts, WithStrictTLV())
	} else if e.parseTLVs {
		opts = append(opts, WithTLVs())
	}

	header, err := Decode(buf, 0, len(buf), opts...)
	if err != nil {
		e.metrics.OnParseError(err)
		e.logger.Debug("ppv2: parse error", zap.Stringer("balancer", balancer), zap.Error(err))
		return &Datagram{Data: buf, Addr: balancer}
	}

	e.metrics.OnHeaderParsed(header)

	if header.IsLocal() {
		e.metrics.OnLocal(balancer)
		return &Datagram{Data: buf[header.HeaderLength():], Addr: balancer}
	}

	apparentSrc := balancer
	if header.Command() == CommandProxy && header.Transport() == TransportDgram {
		if src, ok := header.SourceAddr(); ok {
			e.metrics.OnTrustedProxy(balancer)
			if e.cache != nil {
				e.cache.Put(src, balancer)
			}
			apparentSrc = src
		}
	}

	return &Datagram{Data: buf[header.HeaderLength():], Addr: apparentSrc}
}

// Send delivers d to its destination. With a configured AddressCache, a hit
// redirects the datagram to the stored balancer address; a miss drops the
// datagram, since the application has no known path back through the
// balancer (§4.4 Rationale). Without a configured cache, the datagram is
// forwarded unchanged. A dropped datagram is not an error.
func (e *Endpoint) Send(d *Datagram) error {
	if e.cache == nil {
		_, err := e.conn.WriteTo(d.Data, netAddrFromAddrPort(d.Addr))
		return err
	}

	lb, ok := e.cache.Get(d.Addr)
	if !ok {
		e.metrics.OnCacheMiss(d.Addr)
		e.logger.Debug("ppv2: cache miss", zap.Stringer("client", d.Addr))
		return nil
	}

	e.metrics.OnCacheHit(d.Addr)
	_, err := e.conn.WriteTo(d.Data, netAddrFromAddrPort(lb))
	return err
}

func addrPortFromNetAddr(addr net.Addr) (netip.AddrPort, error) {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.AddrPort(), nil
	}
	return netip.ParseAddrPort(addr.String())
}

func netAddrFromAddrPort(ap netip.AddrPort) net.Addr {
	return net.UDPAddrFromAddrPort(ap)
}
