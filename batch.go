package ppv2

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// batchReader is satisfied by golang.org/x/net/ipv4.PacketConn and
// golang.org/x/net/ipv6.PacketConn: a single recvmmsg(2)-backed syscall
// filling many messages at once, which the teacher's go.mod declared a
// dependency on (golang.org/x/net) but never exercised in the retrieved
// source.
type batchReader interface {
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
}

// BatchEndpoint is an Endpoint variant that reads multiple datagrams per
// syscall via golang.org/x/net's batched PacketConn, for UDP servers
// handling high packet rates. It applies the same §4.4 algorithm as
// Endpoint.Receive to every message in the batch.
type BatchEndpoint struct {
	*Endpoint
	reader batchReader
}

// NewBatchEndpoint wraps conn (which must be a *net.UDPConn; the batched
// read syscalls aren't available on other net.PacketConn implementations)
// for batched receives. ep's collaborators (cache, metrics, trust, logger,
// TLV mode) are reused unchanged.
func NewBatchEndpoint(ep *Endpoint, conn *net.UDPConn) (*BatchEndpoint, error) {
	local := conn.LocalAddr()
	udpAddr, ok := local.(*net.UDPAddr)
	if !ok {
		return nil, ErrInvalidArgument
	}

	var reader batchReader
	if udpAddr.IP.To4() != nil {
		reader = ipv4.NewPacketConn(conn)
	} else {
		reader = ipv6NewPacketConnAdapter{ipv6.NewPacketConn(conn)}
	}

	return &BatchEndpoint{Endpoint: ep, reader: reader}, nil
}

// ipv6NewPacketConnAdapter adapts *ipv6.PacketConn.ReadBatch, which takes
// []ipv6.Message, to the batchReader interface's []ipv4.Message shape (the
// two message types are structurally identical: N, Buffers, OOB, Addr,
// Flags, NN). Kept as a thin per-message copy rather than changing
// batchReader's shape, since ipv4.Message is what ReceiveBatch's callers
// already build.
type ipv6NewPacketConnAdapter struct {
	pc *ipv6.PacketConn
}

func (a ipv6NewPacketConnAdapter) ReadBatch(ms []ipv4.Message, flags int) (int, error) {
	v6ms := make([]ipv6.Message, len(ms))
	for i, m := range ms {
		v6ms[i] = ipv6.Message{Buffers: m.Buffers, OOB: m.OOB, Addr: m.Addr, N: m.N, NN: m.NN, Flags: m.Flags}
	}
	n, err := a.pc.ReadBatch(v6ms, flags)
	for i := 0; i < n; i++ {
		ms[i].N = v6ms[i].N
		ms[i].Addr = v6ms[i].Addr
		ms[i].NN = v6ms[i].NN
		ms[i].Flags = v6ms[i].Flags
	}
	return n, err
}

// ReceiveBatch reads up to len(bufs) datagrams in one syscall, applying the
// §4.4 receive algorithm to each. The returned slice aliases bufs' storage
// and is invalidated by the next call to ReceiveBatch.
func (b *BatchEndpoint) ReceiveBatch(bufs [][]byte) ([]*Datagram, error) {
	msgs := make([]ipv4.Message, len(bufs))
	for i, buf := range bufs {
		msgs[i] = ipv4.Message{Buffers: [][]byte{buf}}
	}

	n, err := b.reader.ReadBatch(msgs, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*Datagram, 0, n)
	for i := 0; i < n; i++ {
		addr, err := addrPortFromNetAddr(msgs[i].Addr)
		if err != nil {
			continue
		}
		out = append(out, b.processDatagram(bufs[i][:msgs[i].N], addr))
	}

	return out, nil
}
