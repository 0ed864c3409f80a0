package ppv2

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePacketConn is a minimal net.PacketConn that replays a queue of
// inbound datagrams and records outbound ones, letting pipeline tests
// drive Endpoint.Receive/Send without a real socket.
type fakePacketConn struct {
	inbound  []fakeDatagram
	outbound []fakeDatagram
}

type fakeDatagram struct {
	data []byte
	addr net.Addr
}

func (f *fakePacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	if len(f.inbound) == 0 {
		return 0, nil, net.ErrClosed
	}
	d := f.inbound[0]
	f.inbound = f.inbound[1:]
	n := copy(p, d.data)
	return n, d.addr, nil
}

func (f *fakePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	cp := append([]byte(nil), p...)
	f.outbound = append(f.outbound, fakeDatagram{data: cp, addr: addr})
	return len(p), nil
}

func (f *fakePacketConn) Close() error                       { return nil }
func (f *fakePacketConn) LocalAddr() net.Addr                 { return &net.UDPAddr{} }
func (f *fakePacketConn) SetDeadline(t time.Time) error       { return nil }
func (f *fakePacketConn) SetReadDeadline(t time.Time) error   { return nil }
func (f *fakePacketConn) SetWriteDeadline(t time.Time) error  { return nil }

func udpAddr(s string) *net.UDPAddr {
	return net.UDPAddrFromAddrPort(netip.MustParseAddrPort(s))
}

func TestEndpointReceiveTrustedDgramUpdatesCache(t *testing.T) {
	header, err := NewBuilder().
		Command(CommandProxy).
		Family(FamilyINET4).
		Transport(TransportDgram).
		Addresses(netip.MustParseAddrPort("203.0.113.1:4000"), netip.MustParseAddrPort("203.0.113.2:443")).
		Build()
	require.NoError(t, err)

	payload := append(append([]byte(nil), header...), []byte("hello")...)

	conn := &fakePacketConn{inbound: []fakeDatagram{{data: payload, addr: udpAddr("198.51.100.1:9999")}}}
	cache := NewUnboundedCache()
	metrics := &recordingListener{}

	ep, err := NewEndpoint(conn).WithCache(cache).WithMetrics(metrics).Build()
	require.NoError(t, err)

	buf := make([]byte, 2048)
	d, err := ep.Receive(buf)
	require.NoError(t, err)

	assert.Equal(t, "hello", string(d.Data))
	assert.Equal(t, "203.0.113.1:4000", d.Addr.String())
	assert.Equal(t, 1, metrics.trustedProxies)
	assert.Equal(t, 1, metrics.headerParsed)

	got, ok := cache.Get(netip.MustParseAddrPort("203.0.113.1:4000"))
	require.True(t, ok)
	assert.Equal(t, "198.51.100.1:9999", got.String())
}

func TestEndpointReceiveLocalStripsHeaderNoCacheUpdate(t *testing.T) {
	header, err := NewBuilder().Command(CommandLocal).Build()
	require.NoError(t, err)

	payload := append(append([]byte(nil), header...), []byte("ping")...)
	conn := &fakePacketConn{inbound: []fakeDatagram{{data: payload, addr: udpAddr("198.51.100.1:9999")}}}

	cache := NewUnboundedCache()
	metrics := &recordingListener{}
	ep, err := NewEndpoint(conn).WithCache(cache).WithMetrics(metrics).Build()
	require.NoError(t, err)

	buf := make([]byte, 2048)
	d, err := ep.Receive(buf)
	require.NoError(t, err)

	assert.Equal(t, "ping", string(d.Data))
	assert.Equal(t, "198.51.100.1:9999", d.Addr.String())
	assert.Equal(t, 1, metrics.local)
	assert.Equal(t, 0, metrics.trustedProxies)
}

func TestEndpointReceiveUntrustedSenderPassesThroughVerbatim(t *testing.T) {
	header, err := NewBuilder().
		Command(CommandProxy).
		Family(FamilyINET4).
		Transport(TransportDgram).
		Addresses(netip.MustParseAddrPort("203.0.113.1:4000"), netip.MustParseAddrPort("203.0.113.2:443")).
		Build()
	require.NoError(t, err)

	payload := append(append([]byte(nil), header...), []byte("hello")...)
	conn := &fakePacketConn{inbound: []fakeDatagram{{data: payload, addr: udpAddr("10.1.2.3:9999")}}}

	trust, err := NewCIDRTrust("198.51.100.0/24")
	require.NoError(t, err)

	metrics := &recordingListener{}
	ep, err := NewEndpoint(conn).WithTrust(trust).WithMetrics(metrics).Build()
	require.NoError(t, err)

	buf := make([]byte, 2048)
	d, err := ep.Receive(buf)
	require.NoError(t, err)

	assert.Equal(t, payload, d.Data)
	assert.Equal(t, "10.1.2.3:9999", d.Addr.String())
	assert.Equal(t, 1, metrics.untrusted)
}

func TestEndpointReceiveGarbagePassesThroughVerbatim(t *testing.T) {
	payload := []byte("not a proxy header at all")
	conn := &fakePacketConn{inbound: []fakeDatagram{{data: payload, addr: udpAddr("10.1.2.3:9999")}}}

	metrics := &recordingListener{}
	ep, err := NewEndpoint(conn).WithMetrics(metrics).Build()
	require.NoError(t, err)

	buf := make([]byte, 2048)
	d, err := ep.Receive(buf)
	require.NoError(t, err)

	assert.Equal(t, payload, d.Data)
	assert.Equal(t, 1, metrics.parseErrors)
}

func TestEndpointSendCacheHitRedirectsToBalancer(t *testing.T) {
	conn := &fakePacketConn{}
	cache := NewUnboundedCache()
	client := netip.MustParseAddrPort("203.0.113.1:4000")
	balancer := netip.MustParseAddrPort("198.51.100.1:9999")
	cache.Put(client, balancer)

	metrics := &recordingListener{}
	ep, err := NewEndpoint(conn).WithCache(cache).WithMetrics(metrics).Build()
	require.NoError(t, err)

	err = ep.Send(&Datagram{Data: []byte("reply"), Addr: client})
	require.NoError(t, err)

	require.Len(t, conn.outbound, 1)
	assert.Equal(t, "reply", string(conn.outbound[0].data))
	assert.Equal(t, balancer.String(), conn.outbound[0].addr.String())
	assert.Equal(t, 1, metrics.cacheHits)
}

func TestEndpointSendCacheMissDropsDatagram(t *testing.T) {
	conn := &fakePacketConn{}
	cache := NewUnboundedCache()
	metrics := &recordingListener{}
	ep, err := NewEndpoint(conn).WithCache(cache).WithMetrics(metrics).Build()
	require.NoError(t, err)

	err = ep.Send(&Datagram{Data: []byte("reply"), Addr: netip.MustParseAddrPort("203.0.113.9:1")})
	require.NoError(t, err)

	assert.Empty(t, conn.outbound)
	assert.Equal(t, 1, metrics.cacheMisses)
}

func TestEndpointSendWithNoCacheForwardsUnchanged(t *testing.T) {
	conn := &fakePacketConn{}
	ep, err := NewEndpoint(conn).Build()
	require.NoError(t, err)

	dest := netip.MustParseAddrPort("203.0.113.9:1")
	err = ep.Send(&Datagram{Data: []byte("reply"), Addr: dest})
	require.NoError(t, err)

	require.Len(t, conn.outbound, 1)
	assert.Equal(t, dest.String(), conn.outbound[0].addr.String())
}

func TestEndpointBuildRequiresConn(t *testing.T) {
	_, err := NewEndpoint(nil).Build()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
