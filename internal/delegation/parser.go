// Package delegation parses registry delegation feeds
// (registry|cc|type|start|value|date|status[|...]) into ASN -> country
// rows and address blocks.
package delegation

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	logging "github.com/op/go-logging"

	"asncountry/internal/cidr"
	"asncountry/internal/table"
)

var log = logging.MustGetLogger("delegation")

const (
	// Wildcard marks unallocated or reserved space in the country column.
	Wildcard = "*"

	minFields = 7

	// MaxASNBlock bounds the rows one asn record may expand to.
	MaxASNBlock = 1 << 20
)

type Kind uint8

const (
	KindOther Kind = iota
	KindASN
	KindIPv4
	KindIPv6
)

func parseKind(s string) Kind {
	switch s {
	case "asn":
		return KindASN
	case "ipv4":
		return KindIPv4
	case "ipv6":
		return KindIPv6
	}
	return KindOther
}

func (k Kind) String() string {
	switch k {
	case KindASN:
		return "asn"
	case KindIPv4:
		return "ipv4"
	case KindIPv6:
		return "ipv6"
	}
	return "other"
}

// Record is one parsed delegation line.
type Record struct {
	Registry string
	Country  string
	Kind     Kind
	Start    string
	Size     string
	Date     string
	Status   string
}

// ParseRecord splits a feed line into a Record. Comments, short lines and
// lines with an empty country are rejected.
func ParseRecord(line string) (Record, bool) {
	if strings.HasPrefix(line, "#") {
		return Record{}, false
	}
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "|")
	if len(fields) < minFields {
		return Record{}, false
	}
	rec := Record{
		Registry: fields[0],
		Country:  strings.TrimSpace(fields[1]),
		Kind:     parseKind(fields[2]),
		Start:    strings.TrimSpace(fields[3]),
		Size:     strings.TrimSpace(fields[4]),
		Date:     fields[5],
		Status:   fields[6],
	}
	if rec.Country == "" {
		return Record{}, false
	}
	return rec, true
}

// Stats counts what a parse pass saw.
type Stats struct {
	Lines   int
	Skipped int
	ASNs    int
	Blocks  int
}

func (s *Stats) add(o Stats) {
	s.Lines += o.Lines
	s.Skipped += o.Skipped
	s.ASNs += o.ASNs
	s.Blocks += o.Blocks
}

// Table is the output of one or more parse passes.
type Table struct {
	ASNs   []table.ASNCountry
	Blocks []Record
	Stats  Stats
}

// Parse reads one feed. Malformed lines are counted and skipped.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		t.Stats.Lines++
		rec, ok := ParseRecord(s.Text())
		if !ok || rec.Country == Wildcard {
			t.Stats.Skipped++
			continue
		}
		switch rec.Kind {
		case KindASN:
			rows, ok := expandASN(rec)
			if !ok {
				t.Stats.Skipped++
				continue
			}
			t.ASNs = append(t.ASNs, rows...)
			t.Stats.ASNs += len(rows)
		case KindIPv4, KindIPv6:
			t.Blocks = append(t.Blocks, rec)
			t.Stats.Blocks++
		default:
			t.Stats.Skipped++
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// expandASN turns an asn record of size N into N consecutive rows.
// A zero or negative size yields nothing; a range running past the 32-bit
// ASN space or larger than MaxASNBlock is rejected.
func expandASN(rec Record) ([]table.ASNCountry, bool) {
	start, err := strconv.ParseUint(rec.Start, 10, 32)
	if err != nil {
		return nil, false
	}
	size, err := strconv.ParseInt(rec.Size, 10, 64)
	if err != nil {
		return nil, false
	}
	if size <= 0 {
		return nil, true
	}
	if start+uint64(size)-1 > math.MaxUint32 {
		return nil, false
	}
	if size > MaxASNBlock {
		log.Debugf("asn %s: block of %d exceeds %d, skipped", rec.Start, size, MaxASNBlock)
		return nil, false
	}
	rows := make([]table.ASNCountry, 0, size)
	for i := uint64(0); i < uint64(size); i++ {
		rows = append(rows, table.ASNCountry{ASN: uint32(start + i), Country: rec.Country})
	}
	return rows, true
}

// Merge concatenates tables in the given order. Later tables never replace
// rows of earlier ones.
func Merge(tables ...*Table) *Table {
	out := &Table{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		out.ASNs = append(out.ASNs, t.ASNs...)
		out.Blocks = append(out.Blocks, t.Blocks...)
		out.Stats.add(t.Stats)
	}
	if len(out.ASNs) == 0 && len(out.Blocks) == 0 {
		log.Warning("delegation feeds produced no ASN or address rows")
	}
	return out
}

// Delegated derives the delegated prefix -> country rows from the address
// blocks. Blocks whose size is not a power of two are dropped. When
// v6SizeIsLength is set the ipv6 size column is read as a prefix length.
func (t *Table) Delegated(v6SizeIsLength bool) []table.PrefixCountry {
	out := make([]table.PrefixCountry, 0, len(t.Blocks))
	dropped := 0
	for _, b := range t.Blocks {
		var prefix string
		var ok bool
		switch {
		case b.Kind == KindIPv4:
			prefix, ok = cidr.Derive(b.Start, b.Size, cidr.V4)
		case v6SizeIsLength:
			prefix, ok = cidr.DeriveFromLength(b.Start, b.Size, cidr.V6)
		default:
			prefix, ok = cidr.Derive(b.Start, b.Size, cidr.V6)
		}
		if !ok {
			dropped++
			continue
		}
		out = append(out, table.PrefixCountry{Prefix: prefix, Country: b.Country})
	}
	if dropped > 0 {
		log.Infof("%d of %d address blocks are not a single prefix, dropped", dropped, len(t.Blocks))
	}
	return out
}
