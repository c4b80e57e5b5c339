package geotree

import (
	"net/netip"

	"go4.org/netipx"
)

// rangePrefixes expands a from..to address range into its canonical CIDR
// prefixes via go4.org/netipx, for the reserved blocks that are naturally
// described as a range rather than a single aligned CIDR.
func rangePrefixes(from, to string) []netip.Prefix {
	r := netipx.IPRangeFrom(netip.MustParseAddr(from), netip.MustParseAddr(to))
	return r.Prefixes()
}

func networksFromPrefixes(prefixes []netip.Prefix, family Family) []Network {
	out := make([]Network, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, networkFromPrefix(p, family))
	}
	return out
}

func cidr(text string, family Family) Network {
	return networkFromPrefix(netip.MustParsePrefix(text), family)
}

// reservedIPv4Networks is the fixed table of reserved/special-use IPv4
// blocks deleted by DeleteReservedNetworks (spec.md 4.D, 6).
var reservedIPv4Networks = buildReservedIPv4Networks()

func buildReservedIPv4Networks() []Network {
	networks := []Network{
		cidr("0.0.0.0/8", FamilyV4),
		cidr("10.0.0.0/8", FamilyV4),
		cidr("127.0.0.0/8", FamilyV4),
		cidr("169.254.0.0/16", FamilyV4),
		cidr("172.16.0.0/12", FamilyV4),
		cidr("192.0.0.0/24", FamilyV4),
		cidr("192.0.2.0/24", FamilyV4),
		cidr("192.88.99.0/24", FamilyV4),
		cidr("192.168.0.0/16", FamilyV4),
		cidr("198.51.100.0/24", FamilyV4),
		cidr("203.0.113.0/24", FamilyV4),
		cidr("240.0.0.0/4", FamilyV4),
		cidr("255.255.255.255/32", FamilyV4),
	}
	// Shared Address Space (RFC 6598) and the benchmarking range (RFC
	// 2544) are more naturally described as address ranges than as a
	// single hand-aligned CIDR; build them via netipx.
	networks = append(networks, networksFromPrefixes(rangePrefixes("100.64.0.0", "100.127.255.255"), FamilyV4)...)
	networks = append(networks, networksFromPrefixes(rangePrefixes("198.18.0.0", "198.19.255.255"), FamilyV4)...)
	return networks
}

// reservedIPv6Networks is the fixed table of reserved/special-use native
// IPv6 blocks deleted by DeleteReservedNetworks on a v6 tree.
var reservedIPv6Networks = []Network{
	cidr("::1/128", FamilyV6),
	cidr("fc00::/7", FamilyV6),
	cidr("fe80::/10", FamilyV6),
	cidr("2001:db8::/32", FamilyV6),
	cidr("2002::/16", FamilyV6),
}
