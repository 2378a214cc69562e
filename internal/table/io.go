package table

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// WriteASNCountry writes rows as "<asn> <country>" lines.
func WriteASNCountry(w io.Writer, rows []ASNCountry) error {
	bw := bufio.NewWriter(w)
	var line []byte
	for _, r := range rows {
		line = strconv.AppendUint(line[:0], uint64(r.ASN), 10)
		line = append(line, ' ')
		line = append(line, r.Country...)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WritePrefixASN writes rows as "<prefix> <asn>" lines.
func WritePrefixASN(w io.Writer, rows []PrefixASN) error {
	bw := bufio.NewWriter(w)
	var line []byte
	for _, r := range rows {
		line = append(line[:0], r.Prefix...)
		line = append(line, ' ')
		line = strconv.AppendUint(line, uint64(r.ASN), 10)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WritePrefixCountry writes rows as "<prefix> <country>" lines.
func WritePrefixCountry(w io.Writer, rows []PrefixCountry) error {
	bw := bufio.NewWriter(w)
	var line []byte
	for _, r := range rows {
		line = append(line[:0], r.Prefix...)
		line = append(line, ' ')
		line = append(line, r.Country...)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes a table through a temporary file in the same directory
// and renames it into place, so readers never observe a half-written table.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadASNCountry reads an ASN -> country table. Lines that do not hold an
// unsigned 32-bit ASN followed by a country are skipped.
func ReadASNCountry(r io.Reader) ([]ASNCountry, error) {
	var out []ASNCountry
	err := scanFields(r, func(a, b string) error {
		asn, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil
		}
		out = append(out, ASNCountry{ASN: uint32(asn), Country: b})
		return nil
	})
	return out, err
}

// ScanPrefixASN streams a prefix -> origin ASN table, calling fn once per
// well-formed line.
func ScanPrefixASN(r io.Reader, fn func(PrefixASN) error) error {
	return scanFields(r, func(a, b string) error {
		asn, err := strconv.ParseUint(b, 10, 32)
		if err != nil {
			return nil
		}
		return fn(PrefixASN{Prefix: a, ASN: uint32(asn)})
	})
}

// ReadPrefixCountry reads a prefix -> country table.
func ReadPrefixCountry(r io.Reader) ([]PrefixCountry, error) {
	var out []PrefixCountry
	err := scanFields(r, func(a, b string) error {
		out = append(out, PrefixCountry{Prefix: a, Country: b})
		return nil
	})
	return out, err
}

func scanFields(r io.Reader, fn func(a, b string) error) error {
	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) != 2 {
			continue
		}
		if err := fn(fields[0], fields[1]); err != nil {
			return err
		}
	}
	return s.Err()
}
