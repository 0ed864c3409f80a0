package ppv2

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipv4Header(t *testing.T) []byte {
	t.Helper()
	b, err := NewBuilder().
		Command(CommandProxy).
		Family(FamilyINET4).
		Transport(TransportDgram).
		Addresses(
			netip.MustParseAddrPort("192.168.0.1:80"),
			netip.MustParseAddrPort("192.168.0.11:443"),
		).
		Build()
	require.NoError(t, err)
	return b
}

func TestDecodeIPv4DgramHappyPath(t *testing.T) {
	buf := ipv4Header(t)
	require.Len(t, buf, 28)

	h, err := Decode(buf, 0, len(buf))
	require.NoError(t, err)

	assert.Equal(t, CommandProxy, h.Command())
	assert.Equal(t, FamilyINET4, h.Family())
	assert.Equal(t, TransportDgram, h.Transport())
	assert.Equal(t, 28, h.HeaderLength())

	src, ok := h.SourceAddr()
	require.True(t, ok)
	assert.Equal(t, "192.168.0.1:80", src.String())

	dst, ok := h.DestAddr()
	require.True(t, ok)
	assert.Equal(t, "192.168.0.11:443", dst.String())
}

func TestDecodeIPv6DgramWithTLV(t *testing.T) {
	buf, err := NewBuilder().
		Command(CommandProxy).
		Family(FamilyINET6).
		Transport(TransportDgram).
		Addresses(
			netip.MustParseAddrPort("[2001:db8::1]:80"),
			netip.MustParseAddrPort("[2001:db8::2]:443"),
		).
		AddTLV(Tlv{Type: PP2TypeNoop, Value: []byte{0xAA}}).
		Build()
	require.NoError(t, err)
	require.Len(t, buf, 16+36+3+1) // fixed + address block + TLV header + 1-byte value

	h, err := Decode(buf, 0, len(buf), WithTLVs())
	require.NoError(t, err)
	assert.Equal(t, len(buf), h.HeaderLength())

	require.Len(t, h.Tlvs(), 1)
	assert.Equal(t, PP2TypeNoop, h.Tlvs()[0].Type)
	assert.Equal(t, []byte{0xAA}, h.Tlvs()[0].Value)
}

func TestDecodeLocal(t *testing.T) {
	buf, err := NewBuilder().Command(CommandLocal).Build()
	require.NoError(t, err)
	require.Len(t, buf, 16)

	h, err := Decode(buf, 0, len(buf))
	require.NoError(t, err)
	assert.True(t, h.IsLocal())
	assert.Equal(t, 16, h.HeaderLength())

	_, ok := h.SourceAddr()
	assert.False(t, ok)
}

func TestDecodeInvalidSignatureEveryByte(t *testing.T) {
	good := ipv4Header(t)

	for i := 0; i < 12; i++ {
		corrupt := append([]byte(nil), good...)
		corrupt[i] ^= 0xFF
		t.Run("byte", func(t *testing.T) {
			_, err := Decode(corrupt, 0, len(corrupt))
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestDecodeInvalidVersion(t *testing.T) {
	good := ipv4Header(t)
	corrupt := append([]byte(nil), good...)
	corrupt[12] = (0x1 << 4) | byte(CommandProxy) // version 1, not supported here
	_, err := Decode(corrupt, 0, len(corrupt))
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestDecodeInvalidCommand(t *testing.T) {
	good := ipv4Header(t)
	corrupt := append([]byte(nil), good...)
	corrupt[12] = (0x2 << 4) | 0x0F
	_, err := Decode(corrupt, 0, len(corrupt))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestDecodeInsufficientData(t *testing.T) {
	good := ipv4Header(t)
	_, err := Decode(good, 0, 10)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDecodeVariableLengthExceedsWindow(t *testing.T) {
	good := ipv4Header(t)
	_, err := Decode(good, 0, len(good)-1)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDecodeTLVOverrun(t *testing.T) {
	buf, err := NewBuilder().
		Command(CommandProxy).
		Family(FamilyINET4).
		Transport(TransportDgram).
		Addresses(
			netip.MustParseAddrPort("10.0.0.1:1"),
			netip.MustParseAddrPort("10.0.0.2:2"),
		).
		Build()
	require.NoError(t, err)
	require.Len(t, buf, 28)

	// Append a TLV that claims a 10-byte value but supplies only 1, and
	// fix up variable_length to match the new total so Decode's overall
	// length check passes before TLV parsing is reached.
	buf = append(buf, 0x04, 0x00, 0x0A, 0xFF)
	variableLength := len(buf) - fixedHeaderLen
	buf[14] = byte(variableLength >> 8)
	buf[15] = byte(variableLength)

	_, err = Decode(buf, 0, len(buf), WithStrictTLV())
	assert.ErrorIs(t, err, ErrTruncatedTlv)

	h, err := Decode(buf, 0, len(buf), WithTLVs())
	require.NoError(t, err)
	assert.Empty(t, h.Tlvs())
}

func TestDecodeInvalidArgument(t *testing.T) {
	good := ipv4Header(t)
	_, err := Decode(good, -1, len(good))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Decode(good, 0, len(good)+100)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		family    Family
		transport Transport
		source    string
		dest      string
	}{
		{"ipv4-dgram", FamilyINET4, TransportDgram, "1.2.3.4:5", "6.7.8.9:10"},
		{"ipv4-stream", FamilyINET4, TransportStream, "1.2.3.4:5", "6.7.8.9:10"},
		{"ipv6-dgram", FamilyINET6, TransportDgram, "[::1]:5", "[::2]:10"},
		{"ipv6-stream", FamilyINET6, TransportStream, "[fe80::1]:5", "[fe80::2]:10"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := NewBuilder().
				Command(CommandProxy).
				Family(tc.family).
				Transport(tc.transport).
				Addresses(netip.MustParseAddrPort(tc.source), netip.MustParseAddrPort(tc.dest)).
				Build()
			require.NoError(t, err)

			h, err := Decode(buf, 0, len(buf))
			require.NoError(t, err)

			src, ok := h.SourceAddr()
			require.True(t, ok)
			assert.Equal(t, tc.source, src.String())

			dst, ok := h.DestAddr()
			require.True(t, ok)
			assert.Equal(t, tc.dest, dst.String())
		})
	}
}
