// Package cidr converts registry allocations (start address, block size)
// into CIDR prefixes.
package cidr

import (
	"math/bits"
	"net/netip"
	"strconv"
)

type Family uint8

const (
	V4 Family = 4
	V6 Family = 6
)

// Bits returns the address width of the family.
func (f Family) Bits() int {
	if f == V6 {
		return 128
	}
	return 32
}

func (f Family) String() string {
	if f == V6 {
		return "ipv6"
	}
	return "ipv4"
}

// PrefixLen returns Bits - log2(size) when size is an exact power of two
// that fits the address family.
func PrefixLen(size uint64, f Family) (int, bool) {
	if bits.OnesCount64(size) != 1 {
		return 0, false
	}
	k := bits.TrailingZeros64(size)
	if k > f.Bits() {
		return 0, false
	}
	return f.Bits() - k, true
}

// Derive turns an allocation into "start/len". The size is taken as text so
// that values which do not fit a uint64 are rejected instead of truncated.
// Blocks whose size is not a power of two are not subdivided; ok is false.
func Derive(start, size string, f Family) (string, bool) {
	n, err := strconv.ParseUint(size, 10, 64)
	if err != nil {
		return "", false
	}
	plen, ok := PrefixLen(n, f)
	if !ok {
		return "", false
	}
	return format(start, plen, f)
}

// DeriveFromLength is Derive for feeds that carry a prefix length instead of
// a block size in the size column.
func DeriveFromLength(start, length string, f Family) (string, bool) {
	plen, err := strconv.Atoi(length)
	if err != nil || plen < 0 || plen > f.Bits() {
		return "", false
	}
	return format(start, plen, f)
}

func format(start string, plen int, f Family) (string, bool) {
	addr, err := netip.ParseAddr(start)
	if err != nil || addr.Zone() != "" {
		return "", false
	}
	if (f == V4) != addr.Is4() {
		return "", false
	}
	return start + "/" + strconv.Itoa(plen), true
}
