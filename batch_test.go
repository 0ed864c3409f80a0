package ppv2

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"
)

type fakeBatchReader struct {
	msgs []ipv4.Message
}

func (f *fakeBatchReader) ReadBatch(ms []ipv4.Message, flags int) (int, error) {
	n := len(f.msgs)
	if n > len(ms) {
		n = len(ms)
	}
	for i := 0; i < n; i++ {
		copy(ms[i].Buffers[0], f.msgs[i].Buffers[0])
		ms[i].N = len(f.msgs[i].Buffers[0])
		ms[i].Addr = f.msgs[i].Addr
	}
	return n, nil
}

func TestBatchEndpointReceiveBatchAppliesPipelineToEachMessage(t *testing.T) {
	header, err := NewBuilder().
		Command(CommandProxy).
		Family(FamilyINET4).
		Transport(TransportDgram).
		Addresses(netip.MustParseAddrPort("203.0.113.1:1"), netip.MustParseAddrPort("203.0.113.2:2")).
		Build()
	require.NoError(t, err)

	payload1 := append(append([]byte(nil), header...), []byte("one")...)
	payload2 := []byte("not ppv2 at all")

	reader := &fakeBatchReader{msgs: []ipv4.Message{
		{Buffers: [][]byte{payload1}, Addr: udpAddr("198.51.100.1:1")},
		{Buffers: [][]byte{payload2}, Addr: udpAddr("198.51.100.2:2")},
	}}

	cache := NewUnboundedCache()
	ep, err := NewEndpoint(&fakePacketConn{}).WithCache(cache).Build()
	require.NoError(t, err)

	be := &BatchEndpoint{Endpoint: ep, reader: reader}

	bufs := [][]byte{make([]byte, 1024), make([]byte, 1024)}
	out, err := be.ReceiveBatch(bufs)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "one", string(out[0].Data))
	assert.Equal(t, "203.0.113.1:1", out[0].Addr.String())

	assert.Equal(t, string(payload2), string(out[1].Data))
	assert.Equal(t, "198.51.100.2:2", out[1].Addr.String())
}

var _ net.PacketConn = (*fakePacketConn)(nil)
