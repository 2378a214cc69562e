// Package rib pulls (prefix, origin ASN) pairs out of the one-line-per-route
// text that MRT decoders print for TABLE_DUMP2 records:
//
//	TABLE_DUMP2|1704067200|B|192.0.2.1|64496 64500|198.51.100.0/24|IGP|...
//
// Decoders differ in where they put the AS path; Layout selects the columns.
package rib

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	logging "github.com/op/go-logging"

	"asncountry/internal/table"
)

var log = logging.MustGetLogger("rib")

const RecordType = "TABLE_DUMP2"

// Layout gives the zero-based column of the AS path and the prefix.
type Layout struct {
	ASPath int
	Prefix int
}

// DefaultLayout reads the AS path from column 4 and the prefix from column 5.
// `bgpdump -m` output needs Layout{ASPath: 6, Prefix: 5}.
var DefaultLayout = Layout{ASPath: 4, Prefix: 5}

func (l Layout) width() int {
	return max(l.ASPath, l.Prefix) + 1
}

// ParseLine returns the announcement carried by a TABLE_DUMP2 line. The
// origin is the last token of the AS path, taken as-is. A path ending in an
// AS_SET ({64511,64512}) keeps the route with table.NoOrigin. Other record
// types, short lines and paths whose last hop is not an ASN are rejected.
func (l Layout) ParseLine(line string) (table.PrefixASN, bool) {
	fields := strings.Split(line, "|")
	if len(fields) < l.width() || fields[0] != RecordType {
		return table.PrefixASN{}, false
	}
	prefix := strings.TrimSpace(fields[l.Prefix])
	hops := strings.Fields(fields[l.ASPath])
	if prefix == "" || len(hops) == 0 {
		return table.PrefixASN{}, false
	}
	last := hops[len(hops)-1]
	if isASSet(last) {
		return table.PrefixASN{Prefix: prefix, ASN: table.NoOrigin}, true
	}
	asn, err := strconv.ParseUint(last, 10, 32)
	if err != nil {
		return table.PrefixASN{}, false
	}
	return table.PrefixASN{Prefix: prefix, ASN: uint32(asn)}, true
}

func isASSet(tok string) bool {
	return len(tok) > 2 && tok[0] == '{' && tok[len(tok)-1] == '}'
}

type Stats struct {
	Lines         int
	Announcements int
	// ASSets counts announcements whose origin is an AS_SET.
	ASSets  int
	Ignored int
}

// Extract reads decoder output and returns every announcement in input
// order. Multiple lines for one prefix are all kept.
func (l Layout) Extract(r io.Reader) ([]table.PrefixASN, Stats, error) {
	var out []table.PrefixASN
	stats, err := l.Scan(r, func(a table.PrefixASN) error {
		out = append(out, a)
		return nil
	})
	return out, stats, err
}

// Scan is the streaming form of Extract.
func (l Layout) Scan(r io.Reader, fn func(table.PrefixASN) error) (Stats, error) {
	var stats Stats
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for s.Scan() {
		stats.Lines++
		a, ok := l.ParseLine(s.Text())
		if !ok {
			stats.Ignored++
			continue
		}
		stats.Announcements++
		if a.ASN == table.NoOrigin {
			stats.ASSets++
		}
		if err := fn(a); err != nil {
			return stats, err
		}
	}
	if err := s.Err(); err != nil {
		return stats, err
	}
	log.Debugf("rib: %d lines, %d announcements (%d with an AS_SET origin), %d ignored",
		stats.Lines, stats.Announcements, stats.ASSets, stats.Ignored)
	return stats, nil
}
