package ppv2

import (
	"encoding/binary"
	"math"
	"net/netip"
)

// Builder accumulates command/family/transport/addresses/TLVs and produces
// a valid PPv2 v2 wire header (§4.2). The zero value is ready to use.
type Builder struct {
	command   Command
	family    Family
	transport Transport
	source    netip.AddrPort
	dest      netip.AddrPort
	hasAddr   bool
	tlvs      []Tlv
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Command sets the command.
func (b *Builder) Command(c Command) *Builder { b.command = c; return b }

// Family sets the address family.
func (b *Builder) Family(f Family) *Builder { b.family = f; return b }

// Transport sets the transport protocol.
func (b *Builder) Transport(t Transport) *Builder { b.transport = t; return b }

// Addresses sets the source and destination addresses. For INET6, an IPv4
// source/destination is automatically emitted as an IPv4-mapped IPv6
// address (::ffff:a.b.c.d), per §4.2.
func (b *Builder) Addresses(source, dest netip.AddrPort) *Builder {
	b.source = source
	b.dest = dest
	b.hasAddr = true
	return b
}

// AddTLV appends a TLV, preserving call order in the serialized output.
func (b *Builder) AddTLV(t Tlv) *Builder {
	b.tlvs = append(b.tlvs, t)
	return b
}

// Build serializes the accumulated fields into a freshly allocated wire
// buffer. Misuse (e.g. INET6 family with neither an IPv4 nor IPv6 address)
// is a programmer error and returns ErrInvalidAddress or ErrInvalidArgument
// rather than a recoverable decode-style error (§4.2, §7).
func (b *Builder) Build() ([]byte, error) {
	if b.command == CommandLocal {
		out := make([]byte, fixedHeaderLen)
		copy(out, signature[:])
		out[12] = (0x2 << 4) | byte(CommandLocal)
		out[13] = (byte(FamilyUnspec) << 4) | byte(TransportUnspec)
		// variable_length already zero.
		return out, nil
	}

	if b.command != CommandProxy {
		return nil, ErrInvalidArgument
	}

	addrBlockLen, wantsAddresses := addressBlockLayout(b.family, b.transport)

	tlvBytes, err := joinTLVs(b.tlvs)
	if err != nil {
		return nil, err
	}

	variableLength := addrBlockLen + len(tlvBytes)
	if variableLength > math.MaxUint16 {
		return nil, errUint16Overflow
	}

	out := make([]byte, 0, fixedHeaderLen+variableLength)
	out = append(out, signature[:]...)
	out = append(out, (0x2<<4)|byte(b.command))
	out = append(out, (byte(b.family)<<4)|byte(b.transport))

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(variableLength))
	out = append(out, lenBuf[:]...)

	if wantsAddresses {
		if !b.hasAddr {
			return nil, ErrInvalidAddress
		}
		addrBytes, err := encodeAddresses(b.family, b.source, b.dest)
		if err != nil {
			return nil, err
		}
		out = append(out, addrBytes...)
	} else {
		// UNIX addresses are not encoded; the declared block is zero-filled.
		out = append(out, make([]byte, addrBlockLen)...)
	}

	out = append(out, tlvBytes...)

	return out, nil
}

// encodeAddresses serializes the source/destination pair for family. INET6
// accepts either an IPv4 or IPv6 address and maps IPv4 to ::ffff:a.b.c.d.
func encodeAddresses(family Family, source, dest netip.AddrPort) ([]byte, error) {
	switch family {
	case FamilyINET4:
		src, dst := source.Addr(), dest.Addr()
		if !src.Is4() || !dst.Is4() {
			return nil, ErrInvalidAddress
		}
		buf := make([]byte, addrBlockINET4)
		srcBytes := src.As4()
		dstBytes := dst.As4()
		copy(buf[0:4], srcBytes[:])
		copy(buf[4:8], dstBytes[:])
		binary.BigEndian.PutUint16(buf[8:10], source.Port())
		binary.BigEndian.PutUint16(buf[10:12], dest.Port())
		return buf, nil
	case FamilyINET6:
		src, dst := source.Addr(), dest.Addr()
		if !src.IsValid() || !dst.IsValid() {
			return nil, ErrInvalidAddress
		}
		// As16 maps an IPv4 address to ::ffff:a.b.c.d automatically.
		buf := make([]byte, addrBlockINET6)
		srcBytes := src.As16()
		dstBytes := dst.As16()
		copy(buf[0:16], srcBytes[:])
		copy(buf[16:32], dstBytes[:])
		binary.BigEndian.PutUint16(buf[32:34], source.Port())
		binary.BigEndian.PutUint16(buf[34:36], dest.Port())
		return buf, nil
	default:
		return nil, ErrInvalidAddress
	}
}
