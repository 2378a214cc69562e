// Package join resolves announced prefixes to countries through the origin
// ASN. The ASN table is loaded into an Index first; announcements are then
// streamed past it one row at a time.
package join

import (
	"io"

	logging "github.com/op/go-logging"

	"asncountry/internal/table"
)

var log = logging.MustGetLogger("join")

// Index maps an ASN to a single country. When the ASN table lists one ASN
// under several countries the first row wins, which for a normalized table
// is the first registry (in configured order) that delegated it.
type Index struct {
	countries map[uint32]string
	conflicts int
}

func NewIndex(rows []table.ASNCountry) *Index {
	idx := &Index{countries: make(map[uint32]string, len(rows))}
	for _, r := range rows {
		if prev, ok := idx.countries[r.ASN]; ok {
			if prev != r.Country {
				idx.conflicts++
				log.Debugf("asn %d: keeping %s, ignoring %s", r.ASN, prev, r.Country)
			}
			continue
		}
		idx.countries[r.ASN] = r.Country
	}
	if idx.conflicts > 0 {
		log.Infof("%d ASNs are listed under more than one country, first registry kept", idx.conflicts)
	}
	return idx
}

// Country returns the country of asn, or table.UnknownCountry. NoOrigin
// always resolves to UnknownCountry.
func (i *Index) Country(asn uint32) string {
	if asn == table.NoOrigin {
		return table.UnknownCountry
	}
	if c, ok := i.countries[asn]; ok {
		return c
	}
	return table.UnknownCountry
}

func (i *Index) Len() int { return len(i.countries) }

// Conflicts is the number of rows that disagreed with an earlier country.
func (i *Index) Conflicts() int { return i.conflicts }

// Row resolves one announcement.
func (i *Index) Row(a table.PrefixASN) table.PrefixCountry {
	return table.PrefixCountry{Prefix: a.Prefix, Country: i.Country(a.ASN)}
}

// Join resolves every announcement; the output has one row per input row.
func Join(idx *Index, anns []table.PrefixASN) []table.PrefixCountry {
	out := make([]table.PrefixCountry, len(anns))
	for n, a := range anns {
		out[n] = idx.Row(a)
	}
	return out
}

type Stats struct {
	Rows       int
	Unresolved int
}

// Stream reads a prefix -> origin ASN table from r and emits one resolved
// row per line.
func Stream(idx *Index, r io.Reader, emit func(table.PrefixCountry) error) (Stats, error) {
	var stats Stats
	err := table.ScanPrefixASN(r, func(a table.PrefixASN) error {
		row := idx.Row(a)
		stats.Rows++
		if row.Country == table.UnknownCountry {
			stats.Unresolved++
		}
		return emit(row)
	})
	return stats, err
}
