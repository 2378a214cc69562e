package join

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asncountry/internal/table"
)

func TestJoinUnknownASN(t *testing.T) {
	idx := NewIndex([]table.ASNCountry{{ASN: 64500, Country: "US"}})
	got := Join(idx, []table.PrefixASN{
		{Prefix: "198.51.100.0/24", ASN: 64500},
		{Prefix: "203.0.113.0/24", ASN: 64999},
	})
	assert.Equal(t, []table.PrefixCountry{
		{Prefix: "198.51.100.0/24", Country: "US"},
		{Prefix: "203.0.113.0/24", Country: table.UnknownCountry},
	}, got)
}

func TestJoinIsTotal(t *testing.T) {
	idx := NewIndex([]table.ASNCountry{{ASN: 1, Country: "AU"}, {ASN: 2, Country: "CN"}})
	anns := []table.PrefixASN{
		{Prefix: "1.0.0.0/24", ASN: 1},
		{Prefix: "1.0.0.0/24", ASN: 1},
		{Prefix: "1.0.0.0/24", ASN: 2},
		{Prefix: "2.0.0.0/8", ASN: 3},
	}
	got := Join(idx, anns)
	require.Len(t, got, len(anns))
	for n, row := range got {
		assert.Equal(t, anns[n].Prefix, row.Prefix)
		assert.Contains(t, []string{"AU", "CN", table.UnknownCountry}, row.Country)
	}
	assert.Equal(t, "CN", got[2].Country)
	assert.Equal(t, table.UnknownCountry, got[3].Country)
}

func TestEmptyIndex(t *testing.T) {
	got := Join(NewIndex(nil), []table.PrefixASN{{Prefix: "10.0.0.0/8", ASN: 1}})
	assert.Equal(t, []table.PrefixCountry{{Prefix: "10.0.0.0/8", Country: table.UnknownCountry}}, got)
	assert.Empty(t, Join(NewIndex([]table.ASNCountry{{ASN: 1, Country: "AU"}}), nil))
}

func TestIndexFirstRowWins(t *testing.T) {
	idx := NewIndex([]table.ASNCountry{{ASN: 64500, Country: "US"}, {ASN: 64500, Country: "DE"}, {ASN: 64500, Country: "US"}, {ASN: 64501, Country: "FR"}})
	assert.Equal(t, "US", idx.Country(64500))
	assert.Equal(t, "FR", idx.Country(64501))
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 1, idx.Conflicts())
}

func TestStream(t *testing.T) {
	idx := NewIndex([]table.ASNCountry{{ASN: 64500, Country: "US"}})
	var rows []table.PrefixCountry
	stats, err := Stream(idx, strings.NewReader("198.51.100.0/24 64500\n203.0.113.0/24 64999\nbroken\n"), func(r table.PrefixCountry) error {
		rows = append(rows, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Rows: 2, Unresolved: 1}, stats)
	assert.Equal(t, []table.PrefixCountry{
		{Prefix: "198.51.100.0/24", Country: "US"},
		{Prefix: "203.0.113.0/24", Country: table.UnknownCountry},
	}, rows)
}

func TestNoOriginIsUnknown(t *testing.T) {
	// a registry row for AS 0 must not give AS_SET routes a country
	idx := NewIndex([]table.ASNCountry{{ASN: 0, Country: "ZZ"}, {ASN: 64500, Country: "US"}})
	got := Join(idx, []table.PrefixASN{
		{Prefix: "192.0.2.0/24", ASN: table.NoOrigin},
		{Prefix: "198.51.100.0/24", ASN: 64500},
	})
	assert.Equal(t, []table.PrefixCountry{
		{Prefix: "192.0.2.0/24", Country: table.UnknownCountry},
		{Prefix: "198.51.100.0/24", Country: "US"},
	}, got)
}
