package ppv2

import (
	"encoding/binary"
	"net/netip"
)

// signature is the fixed 12-byte PPv2 preamble (offsets 0..11).
var signature = [12]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

const (
	fixedHeaderLen = 16
	addrBlockINET4 = 12
	addrBlockINET6 = 36
	addrBlockUnix  = 216
)

// DecodeOption tunes Decode's behavior.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	parseTLVs bool
	strict    bool
}

// WithTLVs requests that the TLV region be parsed; without it Decode
// returns an empty TLV list and never looks past the address block.
func WithTLVs() DecodeOption {
	return func(o *decodeOptions) { o.parseTLVs = true }
}

// WithStrictTLV requests strict TLV parsing: a TLV whose declared length
// crosses the end of the variable region yields ErrTruncatedTlv instead of
// silently stopping. Implies WithTLVs.
func WithStrictTLV() DecodeOption {
	return func(o *decodeOptions) {
		o.parseTLVs = true
		o.strict = true
	}
}

// Decode parses a PPv2 header from buf[offset : offset+length]. On success
// it returns an immutable *ProxyHeader; on failure one of the sentinel
// errors in errors.go, wrapped in a *DecodeError. An out-of-range
// offset/length is reported as ErrInvalidArgument, returned unwrapped.
//
// Decode is a pure function: it holds no state and is safe to call
// concurrently from any number of goroutines.
func Decode(buf []byte, offset, length int, opts ...DecodeOption) (*ProxyHeader, error) {
	if offset < 0 || length < 0 || offset+length > len(buf) {
		return nil, ErrInvalidArgument
	}

	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if length < fixedHeaderLen {
		return nil, decodeErr(offset, ErrInsufficientData)
	}

	window := buf[offset : offset+length]

	var sig [12]byte
	copy(sig[:], window[:12])
	if sig != signature {
		return nil, decodeErr(offset, ErrInvalidSignature)
	}

	verCmd := window[12]
	version := verCmd >> 4
	if version != 0x2 {
		return nil, decodeErr(offset, ErrInvalidVersion)
	}

	cmdNibble := verCmd & 0x0F
	if cmdNibble != byte(CommandLocal) && cmdNibble != byte(CommandProxy) {
		return nil, decodeErr(offset, ErrInvalidCommand)
	}
	command := Command(cmdNibble)

	if command == CommandLocal {
		return &ProxyHeader{
			command:      CommandLocal,
			family:       FamilyUnspec,
			transport:    TransportUnspec,
			headerLength: fixedHeaderLen,
		}, nil
	}

	famProto := window[13]
	familyNibble := famProto >> 4
	if familyNibble > byte(FamilyUnix) {
		return nil, decodeErr(offset, ErrInvalidFamily)
	}
	family := Family(familyNibble)

	transportNibble := famProto & 0x0F
	if transportNibble > byte(TransportDgram) {
		return nil, decodeErr(offset, ErrInvalidTransport)
	}
	transport := Transport(transportNibble)

	variableLength := int(binary.BigEndian.Uint16(window[14:16]))
	if fixedHeaderLen+variableLength > length {
		return nil, decodeErr(offset, ErrInsufficientData)
	}

	addrBlockLen, hasAddresses := addressBlockLayout(family, transport)
	if variableLength < addrBlockLen {
		return nil, decodeErr(offset, ErrTruncatedAddress)
	}

	variable := window[fixedHeaderLen : fixedHeaderLen+variableLength]

	header := &ProxyHeader{
		command:      command,
		family:       family,
		transport:    transport,
		headerLength: fixedHeaderLen + variableLength,
	}

	if hasAddresses {
		src, dst, err := decodeAddresses(family, transport, variable[:addrBlockLen])
		if err != nil {
			return nil, decodeErr(offset, err)
		}
		header.sourceAddr = src
		header.destAddr = dst
		header.hasAddresses = true
	}

	if o.parseTLVs {
		tlvs, err := splitTLVs(variable[addrBlockLen:], o.strict)
		if err != nil {
			return nil, decodeErr(offset, err)
		}
		header.tlvs = tlvs
	}

	return header, nil
}

// addressBlockLayout returns the number of address-block bytes expected
// for the given family/transport combination, and whether that block
// carries addresses the caller should surface (§4.1 address block table).
func addressBlockLayout(family Family, transport Transport) (blockLen int, hasAddresses bool) {
	switch family {
	case FamilyINET4:
		if transport == TransportUnspec {
			return 0, false
		}
		return addrBlockINET4, true
	case FamilyINET6:
		if transport == TransportUnspec {
			return 0, false
		}
		return addrBlockINET6, true
	case FamilyUnix:
		return addrBlockUnix, false
	default: // FamilyUnspec
		return 0, false
	}
}

// decodeAddresses parses the fixed-size address block for family/transport
// out of block, which must already be exactly the expected length.
func decodeAddresses(family Family, transport Transport, block []byte) (src, dst netip.AddrPort, err error) {
	switch family {
	case FamilyINET4:
		srcIP, ok1 := netip.AddrFromSlice(block[0:4])
		dstIP, ok2 := netip.AddrFromSlice(block[4:8])
		if !ok1 || !ok2 {
			return netip.AddrPort{}, netip.AddrPort{}, ErrInvalidAddress
		}
		srcPort := binary.BigEndian.Uint16(block[8:10])
		dstPort := binary.BigEndian.Uint16(block[10:12])
		return netip.AddrPortFrom(srcIP, srcPort), netip.AddrPortFrom(dstIP, dstPort), nil
	case FamilyINET6:
		srcIP, ok1 := netip.AddrFromSlice(block[0:16])
		dstIP, ok2 := netip.AddrFromSlice(block[16:32])
		if !ok1 || !ok2 {
			return netip.AddrPort{}, netip.AddrPort{}, ErrInvalidAddress
		}
		srcPort := binary.BigEndian.Uint16(block[32:34])
		dstPort := binary.BigEndian.Uint16(block[34:36])
		return netip.AddrPortFrom(srcIP, srcPort), netip.AddrPortFrom(dstIP, dstPort), nil
	default:
		return netip.AddrPort{}, netip.AddrPort{}, ErrInvalidAddress
	}
}
