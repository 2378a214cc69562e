// Package table holds the row types shared by the pipeline stages and the
// normalizer that turns them into sorted, deduplicated output tables.
package table

import (
	"cmp"
	"slices"
	"strconv"
)

// UnknownCountry is the country reported for an origin ASN that has no
// registry delegation.
const UnknownCountry = "Unknown"

// NoOrigin stands in for the origin of a route whose AS path ends in an
// AS_SET. AS 0 is never a valid origin (RFC 7607), so it never resolves.
const NoOrigin uint32 = 0

// ASNCountry is one ASN -> country row.
type ASNCountry struct {
	ASN     uint32
	Country string
}

// PrefixASN is one announced prefix with the origin ASN taken from its AS path.
type PrefixASN struct {
	Prefix string
	ASN    uint32
}

// PrefixCountry is one prefix -> country row, used for both the announced
// and the delegated prefix tables.
type PrefixCountry struct {
	Prefix  string
	Country string
}

// NormalizeASN sorts rows numerically by ASN and drops exact duplicate
// (asn, country) pairs. Rows sharing an ASN keep their input order, so the
// first registry to list an ASN stays first in the table.
func NormalizeASN(rows []ASNCountry) []ASNCountry {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b ASNCountry) int {
		return cmp.Compare(a.ASN, b.ASN)
	})

	seen := make(map[ASNCountry]struct{}, len(out))
	n := 0
	for _, r := range out {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out[n] = r
		n++
	}
	return out[:n]
}

// NormalizePrefixCountry sorts rows in line order and removes exact
// duplicates. A prefix may still appear once per distinct country.
func NormalizePrefixCountry(rows []PrefixCountry) []PrefixCountry {
	out := slices.Clone(rows)
	slices.SortFunc(out, func(a, b PrefixCountry) int {
		if c := cmp.Compare(a.Prefix, b.Prefix); c != 0 {
			return c
		}
		return cmp.Compare(a.Country, b.Country)
	})
	return slices.Compact(out)
}

// NormalizePrefixASN sorts rows in line order and removes exact duplicates.
// Multi-origin prefixes keep one row per origin.
func NormalizePrefixASN(rows []PrefixASN) []PrefixASN {
	out := slices.Clone(rows)
	slices.SortFunc(out, func(a, b PrefixASN) int {
		if c := cmp.Compare(a.Prefix, b.Prefix); c != 0 {
			return c
		}
		// line order compares the decimal text, not the number
		return cmp.Compare(strconv.FormatUint(uint64(a.ASN), 10), strconv.FormatUint(uint64(b.ASN), 10))
	})
	return slices.Compact(out)
}
