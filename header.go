// Package ppv2 implements a HAProxy PROXY Protocol v2 (PPv2) codec and a
// UDP datagram pipeline that lets server sockets interoperate transparently
// with load balancers that prepend a PPv2 preamble to each packet.
package ppv2

import "net/netip"

// Command is the PPv2 command nibble (offset 12, low nibble).
type Command uint8

const (
	// CommandLocal indicates the connection/datagram was initiated by the
	// proxy itself and carries no client information.
	CommandLocal Command = 0x0
	// CommandProxy indicates the connection/datagram is relayed on behalf
	// of another node, and the header carries that node's address.
	CommandProxy Command = 0x1
)

// IsLocal reports whether the command is LOCAL.
func (c Command) IsLocal() bool { return c == CommandLocal }

// String implements fmt.Stringer.
func (c Command) String() string {
	switch c {
	case CommandLocal:
		return "LOCAL"
	case CommandProxy:
		return "PROXY"
	default:
		return "UNKNOWN"
	}
}

// Family is the address family nibble (offset 13, high nibble).
type Family uint8

const (
	FamilyUnspec Family = 0x0
	FamilyINET4  Family = 0x1
	FamilyINET6  Family = 0x2
	FamilyUnix   Family = 0x3
)

// String implements fmt.Stringer.
func (f Family) String() string {
	switch f {
	case FamilyUnspec:
		return "UNSPEC"
	case FamilyINET4:
		return "INET4"
	case FamilyINET6:
		return "INET6"
	case FamilyUnix:
		return "UNIX"
	default:
		return "UNKNOWN"
	}
}

// Transport is the transport-protocol nibble (offset 13, low nibble).
type Transport uint8

const (
	TransportUnspec Transport = 0x0
	TransportStream Transport = 0x1
	TransportDgram  Transport = 0x2
)

// String implements fmt.Stringer.
func (t Transport) String() string {
	switch t {
	case TransportUnspec:
		return "UNSPEC"
	case TransportStream:
		return "STREAM"
	case TransportDgram:
		return "DGRAM"
	default:
		return "UNKNOWN"
	}
}

// Tlv is a Type-Length-Value record carried after the address block. Value
// owns a copy of its bytes; it is never a slice into the decoder's input
// buffer.
type Tlv struct {
	Type  PP2Type
	Value []byte
}

// ProxyHeader is an immutable, decoded PPv2 header. Zero value is not
// meaningful; construct via Decode or Builder.Build.
type ProxyHeader struct {
	command      Command
	family       Family
	transport    Transport
	sourceAddr   netip.AddrPort
	destAddr     netip.AddrPort
	hasAddresses bool
	tlvs         []Tlv
	headerLength int
}

// Command returns the decoded command.
func (h *ProxyHeader) Command() Command { return h.command }

// Family returns the decoded address family.
func (h *ProxyHeader) Family() Family { return h.family }

// Transport returns the decoded transport protocol.
func (h *ProxyHeader) Transport() Transport { return h.transport }

// IsLocal reports whether this header's command is LOCAL.
func (h *ProxyHeader) IsLocal() bool { return h.command.IsLocal() }

// SourceAddr returns the client address and whether it is present. Absent
// for LOCAL command or UNSPEC/UNIX family, per the presence invariant in §3.
func (h *ProxyHeader) SourceAddr() (netip.AddrPort, bool) {
	return h.sourceAddr, h.hasAddresses
}

// DestAddr returns the proxy-facing destination address and whether it is
// present, under the same invariant as SourceAddr.
func (h *ProxyHeader) DestAddr() (netip.AddrPort, bool) {
	return h.destAddr, h.hasAddresses
}

// Tlvs returns the TLVs parsed from the header, in wire order. Empty (not
// nil-checked by callers) when TLV parsing was not requested or none were
// present.
func (h *ProxyHeader) Tlvs() []Tlv { return h.tlvs }

// HeaderLength is the total number of bytes this header occupied on the
// wire, always >= 16.
func (h *ProxyHeader) HeaderLength() int { return h.headerLength }
