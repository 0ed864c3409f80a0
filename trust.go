package ppv2

import (
	"fmt"
	"net/netip"

	"github.com/gaissmai/bart"
)

// TrustPredicate decides whether a given sender address is authorized to
// speak PPv2 to an Endpoint (§6.2). Implementations must be pure and safe
// for concurrent use; the port is intentionally ignored by the CIDR-based
// constructor below, but a caller-supplied predicate may inspect it.
type TrustPredicate func(netip.AddrPort) bool

// cidrTrust is a convenience TrustPredicate backed by a pair of
// longest-prefix-match tables (one per address family, so IPv4 and IPv6
// never cross-match, per §6.2). It is built on github.com/gaissmai/bart,
// whose Table.Contains is documented by its author as "fast enough ...
// against an allow-/deny-list" — exactly this use.
type cidrTrust struct {
	v4 *bart.Table[struct{}]
	v6 *bart.Table[struct{}]
}

// NewCIDRTrust builds a TrustPredicate that matches the address portion of
// an incoming AddrPort against the given CIDR strings (port is ignored).
// Non-canonical prefixes are normalized by masking off host bits; a
// malformed CIDR string or an out-of-range prefix length is rejected with
// an error rather than silently ignored.
func NewCIDRTrust(cidrs ...string) (TrustPredicate, error) {
	t := &cidrTrust{
		v4: &bart.Table[struct{}]{},
		v6: &bart.Table[struct{}]{},
	}

	for _, s := range cidrs {
		pfx, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("ppv2: invalid CIDR %q: %w", s, err)
		}

		addr := pfx.Addr()
		maxBits := 32
		if addr.Is6() {
			maxBits = 128
		}
		if pfx.Bits() < 0 || pfx.Bits() > maxBits {
			return nil, fmt.Errorf("ppv2: invalid CIDR %q: prefix length out of range", s)
		}

		pfx = pfx.Masked()

		if addr.Is4() {
			t.v4.Insert(pfx, struct{}{})
		} else {
			t.v6.Insert(pfx, struct{}{})
		}
	}

	return t.match, nil
}

func (t *cidrTrust) match(ap netip.AddrPort) bool {
	addr := ap.Addr()
	if !addr.IsValid() {
		return false
	}
	if addr.Is4() {
		return t.v4.Contains(addr)
	}
	return t.v6.Contains(addr)
}
