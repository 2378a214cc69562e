package main

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/mikioh/ipaddr"

	"asncountry/internal/compress"
	"asncountry/internal/join"
	"asncountry/internal/pipeline"
	"asncountry/internal/table"
)

var errBadQuery = errors.New("query must be an ASN (64500, AS64500) or an IP address")

// countryName returns the English name of an alpha-2 code, or "" for
// registry pseudo-codes and the Unknown sentinel.
func countryName(code string) string {
	if code == table.UnknownCountry {
		return ""
	}
	c := countries.ByName(code)
	if c == countries.Unknown {
		return ""
	}
	return c.String()
}

// parseQuery accepts "64500", "AS64500" or an IP address.
func parseQuery(q string) (asn uint32, ip net.IP, err error) {
	s := strings.TrimSpace(q)
	if len(s) > 2 && strings.EqualFold(s[:2], "AS") {
		s = s[2:]
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(n), nil, nil
	}
	if ip = net.ParseIP(strings.TrimSpace(q)); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		return 0, ip, nil
	}
	return 0, nil, errBadQuery
}

// openTable opens a table in dir, whether or not it was compressed.
func openTable(dir, name string) (io.ReadCloser, error) {
	var firstErr error
	for _, f := range []compress.Format{compress.None, compress.Gzip, compress.Zstd} {
		r, err := compress.Open(filepath.Join(dir, name+f.Ext()))
		if err == nil {
			return r, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func readASNTable(dir string) ([]table.ASNCountry, error) {
	r, err := openTable(dir, pipeline.ASNCountryFile)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return table.ReadASNCountry(r)
}

func readPrefixTable(dir, name string) ([]table.PrefixCountry, error) {
	r, err := openTable(dir, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return table.ReadPrefixCountry(r)
}

func lookupASN(dir string, asn uint32) (*ASNResult, error) {
	rows, err := readASNTable(dir)
	if err != nil {
		return nil, err
	}
	res := &ASNResult{ASN: asn, Countries: []string{}}
	for _, r := range rows {
		if r.ASN == asn {
			res.Countries = append(res.Countries, r.Country)
		}
	}
	res.Country = join.NewIndex(rows).Country(asn)
	res.CountryName = countryName(res.Country)
	return res, nil
}

func hostPrefix(ip net.IP) *ipaddr.Prefix {
	bits := 8 * len(ip)
	return ipaddr.NewPrefix(&net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
}

// longestMatches returns the rows whose prefix holds ip, keeping only the
// most specific prefix length found.
func longestMatches(rows []table.PrefixCountry, ip net.IP) []PrefixMatch {
	host := hostPrefix(ip)
	best := -1
	var out []PrefixMatch
	for _, r := range rows {
		_, n, err := net.ParseCIDR(r.Prefix)
		if err != nil {
			continue
		}
		if (n.IP.To4() != nil) != (ip.To4() != nil) {
			continue
		}
		if v4 := n.IP.To4(); v4 != nil {
			n.IP = v4
		}
		p := ipaddr.NewPrefix(n)
		if !p.Contains(host) && !p.Equal(host) {
			continue
		}
		switch l := p.Len(); {
		case l > best:
			best = l
			out = out[:0]
			fallthrough
		case l == best:
			out = append(out, PrefixMatch{Prefix: r.Prefix, Country: r.Country, CountryName: countryName(r.Country)})
		}
	}
	if out == nil {
		out = []PrefixMatch{}
	}
	return out
}

func lookupIP(dir string, ip net.IP) (*IPResult, error) {
	res := &IPResult{IP: ip.String()}
	delegated, err := readPrefixTable(dir, pipeline.DelegatedFile)
	if err != nil {
		return nil, err
	}
	res.Delegated = longestMatches(delegated, ip)

	announced, err := readPrefixTable(dir, pipeline.PrefixCountryFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		announced = nil
	}
	res.Announced = longestMatches(announced, ip)
	return res, nil
}

// summarize counts table rows per country, most ASNs first.
func summarize(dir string) ([]CountrySummary, error) {
	byCountry := make(map[string]*CountrySummary)
	get := func(cc string) *CountrySummary {
		s, ok := byCountry[cc]
		if !ok {
			s = &CountrySummary{Country: cc, Name: countryName(cc)}
			byCountry[cc] = s
		}
		return s
	}

	asns, err := readASNTable(dir)
	if err != nil {
		return nil, err
	}
	for _, r := range asns {
		get(r.Country).ASNs++
	}
	delegated, err := readPrefixTable(dir, pipeline.DelegatedFile)
	if err != nil {
		return nil, err
	}
	for _, r := range delegated {
		get(r.Country).Delegated++
	}
	announced, err := readPrefixTable(dir, pipeline.PrefixCountryFile)
	if err != nil {
		return nil, err
	}
	for _, r := range announced {
		get(r.Country).Announced++
	}

	out := make([]CountrySummary, 0, len(byCountry))
	for _, s := range byCountry {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ASNs != out[j].ASNs {
			return out[i].ASNs > out[j].ASNs
		}
		return out[i].Country < out[j].Country
	})
	return out, nil
}
