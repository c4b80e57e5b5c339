package geotree

import (
	"net/netip"

	"github.com/pkg/errors"
)

// Family identifies the address family a Tree (or a Network) belongs to.
type Family uint8

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 6
)

func (f Family) byteLen() int {
	if f == FamilyV4 {
		return 4
	}
	return 16
}

func (f Family) maxDepth() int {
	if f == FamilyV4 {
		return 32
	}
	return 128
}

// Network is a parsed IP network: fixed-width big-endian address bytes plus
// a mask length. Bits are indexed as BitAt does: bit (maxDepth-1) is the
// most significant bit of the first byte; bit 0 is the least significant
// bit of the last byte.
type Network struct {
	bytes     []byte
	prefixLen int
	family    Family
}

func (n Network) Family() Family   { return n.family }
func (n Network) PrefixLen() int   { return n.prefixLen }
func (n Network) maxDepth0() int   { return n.family.maxDepth() - 1 }
func (n Network) Bytes() []byte    { return append([]byte(nil), n.bytes...) }

// BitAt returns the bit at index b, where b == maxDepth0 is the root
// (most-significant) bit and b == 0 is the final (least-significant) bit.
func (n Network) BitAt(b int) uint8 {
	return bitAt(n.bytes, n.maxDepth0(), b)
}

func bitAt(bytes []byte, maxDepth0, b int) uint8 {
	pos := maxDepth0 - b
	byteIdx := pos >> 3
	shift := uint(^pos & 7)
	if bytes[byteIdx]&(1<<shift) != 0 {
		return 1
	}
	return 0
}

// PrefixParent returns the network with the same bytes and mask length-1,
// i.e. the wider prefix that contains both halves of n.
func (n Network) PrefixParent() Network {
	return Network{bytes: n.bytes, prefixLen: n.prefixLen - 1, family: n.family}
}

// Addr returns the network's address as a netip.Addr.
func (n Network) Addr() netip.Addr {
	if n.family == FamilyV4 {
		var a [4]byte
		copy(a[:], n.bytes)
		return netip.AddrFrom4(a)
	}
	var a [16]byte
	copy(a[:], n.bytes)
	return netip.AddrFrom16(a)
}

func (n Network) String() string {
	return netip.PrefixFrom(n.Addr(), n.prefixLen).String()
}

var zeroV4In6 [12]byte

// embedV4InV6 returns the 16-byte representation of a v4 address mapped at
// ::<v4>/96, i.e. with 12 leading zero bytes. This matches the convention
// the teacher's ipV4ToV6 helper uses, not the RFC 4291 ::ffff:0:0/96 form.
func embedV4InV6(v4 [4]byte) []byte {
	b := make([]byte, 16)
	copy(b[12:], v4[:])
	return b
}

// ParseNetwork parses text as an IP address and pairs it with prefixLen to
// build a Network for the given tree family. An IPv4 address parsed
// against a v6 family is mapped into the v6 address space at
// ::<v4>/(96+prefixLen), per SPEC_FULL.md's resolution of the 4.A/4.D
// inconsistency. A v6 address parsed against a v4 family is rejected with
// ErrVersionMismatch.
func ParseNetwork(text string, prefixLen int, family Family) (Network, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return Network{}, &ParseError{Text: text, Cause: err}
	}
	return buildNetwork(addr, prefixLen, text, family)
}

func buildNetwork(addr netip.Addr, prefixLen int, text string, family Family) (Network, error) {
	if addr.Is4() {
		a4 := addr.As4()
		if family == FamilyV4 {
			if prefixLen < 0 || prefixLen > 32 {
				return Network{}, &ParseError{Text: text, Cause: errors.Errorf("mask length %d out of range for IPv4", prefixLen)}
			}
			return Network{bytes: append([]byte(nil), a4[:]...), prefixLen: prefixLen, family: FamilyV4}, nil
		}
		return Network{bytes: embedV4InV6(a4), prefixLen: prefixLen + 96, family: FamilyV6}, nil
	}

	if family == FamilyV4 {
		return Network{}, errors.WithStack(ErrVersionMismatch)
	}
	if prefixLen < 0 || prefixLen > 128 {
		return Network{}, &ParseError{Text: text, Cause: errors.Errorf("mask length %d out of range for IPv6", prefixLen)}
	}
	a16 := addr.As16()
	return Network{bytes: append([]byte(nil), a16[:]...), prefixLen: prefixLen, family: FamilyV6}, nil
}

// networkFromPrefix builds a Network directly from a netip.Prefix, used for
// the built-in alias and reserved-network tables where there is no text to
// parse.
func networkFromPrefix(p netip.Prefix, family Family) Network {
	addr := p.Addr()
	if family == FamilyV4 {
		a4 := addr.As4()
		return Network{bytes: append([]byte(nil), a4[:]...), prefixLen: p.Bits(), family: FamilyV4}
	}
	a16 := addr.As16()
	return Network{bytes: append([]byte(nil), a16[:]...), prefixLen: p.Bits(), family: FamilyV6}
}
