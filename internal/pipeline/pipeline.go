// Package pipeline runs the transform stages in order and writes the four
// output tables. Each stage materializes its table on disk before the next
// one starts. Tables are staged and only replace the previous run's output
// once every stage has succeeded; runs sharing an output directory must not
// overlap.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"

	logging "github.com/op/go-logging"
	"github.com/pkg/errors"

	"asncountry/internal/compress"
	"asncountry/internal/delegation"
	"asncountry/internal/join"
	"asncountry/internal/rib"
	"asncountry/internal/table"
)

var log = logging.MustGetLogger("pipeline")

var ErrEmptyInput = errors.New("pipeline: empty input")

const (
	ASNCountryFile    = "asn-country.txt"
	DelegatedFile     = "delegated-prefix-country.txt"
	PrefixASNFile     = "prefix-asn.txt"
	PrefixCountryFile = "prefix-country.txt"
)

// OutputFiles lists the tables in the order they are produced.
var OutputFiles = []string{ASNCountryFile, DelegatedFile, PrefixASNFile, PrefixCountryFile}

type Options struct {
	// Delegations are registry feeds in precedence order; compressed files
	// are read through their decompressor.
	Delegations []string
	// RIBText is the decoded TABLE_DUMP2 text of the routing snapshot.
	RIBText                string
	Layout                 rib.Layout
	OutputDir              string
	IPv6SizeIsPrefixLength bool
	Compress               compress.Format
}

type Stats struct {
	Delegation delegation.Stats
	RIB        rib.Stats
	Join       join.Stats

	ASNRows           int
	DelegatedRows     int
	PrefixASNRows     int
	PrefixCountryRows int
}

// Run executes the delegation, routing and join stages in a staging
// directory inside opts.OutputDir and then moves the tables into place. A
// failed run leaves the previous tables untouched.
func Run(ctx context.Context, opts Options) (*Stats, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, err
	}
	staging, err := os.MkdirTemp(opts.OutputDir, ".staging-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	staged := opts
	staged.OutputDir = staging
	stats := &Stats{}
	if err := DelegationStage(staged, stats); err != nil {
		return nil, errors.Wrap(err, "delegation stage")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := RoutingStage(staged, stats); err != nil {
		return nil, errors.Wrap(err, "routing stage")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := JoinStage(staging, stats); err != nil {
		return nil, errors.Wrap(err, "join stage")
	}
	format := opts.Compress
	if format == "" {
		format = compress.None
	}
	for _, name := range OutputFiles {
		if _, err := compress.CompressFile(filepath.Join(staging, name), format); err != nil {
			return nil, err
		}
	}
	if err := publish(staging, opts.OutputDir, format); err != nil {
		return nil, errors.Wrap(err, "publish tables")
	}
	log.Infof("tables: %d asn, %d delegated, %d announced, %d prefix-country (%d unresolved)",
		stats.ASNRows, stats.DelegatedRows, stats.PrefixASNRows, stats.PrefixCountryRows, stats.Join.Unresolved)
	return stats, nil
}

// publish moves the staged tables into dir and removes copies of the same
// tables left there in another compression format.
func publish(staging, dir string, format compress.Format) error {
	for _, name := range OutputFiles {
		for _, f := range []compress.Format{compress.None, compress.Gzip, compress.Zstd} {
			if f == format {
				continue
			}
			if err := os.Remove(filepath.Join(dir, name+f.Ext())); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		file := name + format.Ext()
		if err := os.Rename(filepath.Join(staging, file), filepath.Join(dir, file)); err != nil {
			return err
		}
	}
	return nil
}

func parseFeed(path string) (*delegation.Table, error) {
	r, err := compress.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	t, err := delegation.Parse(r)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	log.Infof("%s: %d lines, %d asn rows, %d blocks, %d skipped",
		filepath.Base(path), t.Stats.Lines, t.Stats.ASNs, t.Stats.Blocks, t.Stats.Skipped)
	return t, nil
}

// DelegationStage writes the ASN -> country and delegated prefix tables.
func DelegationStage(opts Options, stats *Stats) error {
	tables := make([]*delegation.Table, 0, len(opts.Delegations))
	for _, path := range opts.Delegations {
		t, err := parseFeed(path)
		if err != nil {
			return err
		}
		tables = append(tables, t)
	}
	merged := delegation.Merge(tables...)
	stats.Delegation = merged.Stats

	asns := table.NormalizeASN(merged.ASNs)
	delegated := table.NormalizePrefixCountry(merged.Delegated(opts.IPv6SizeIsPrefixLength))
	stats.ASNRows = len(asns)
	stats.DelegatedRows = len(delegated)

	err := table.WriteFile(filepath.Join(opts.OutputDir, ASNCountryFile), func(w io.Writer) error {
		return table.WriteASNCountry(w, asns)
	})
	if err != nil {
		return err
	}
	return table.WriteFile(filepath.Join(opts.OutputDir, DelegatedFile), func(w io.Writer) error {
		return table.WritePrefixCountry(w, delegated)
	})
}

// RoutingStage writes the prefix -> origin ASN table from decoded RIB text.
func RoutingStage(opts Options, stats *Stats) error {
	r, err := compress.Open(opts.RIBText)
	if err != nil {
		return err
	}
	defer r.Close()

	anns, ribStats, err := opts.Layout.Extract(r)
	if err != nil {
		return errors.Wrapf(err, "read %s", opts.RIBText)
	}
	stats.RIB = ribStats
	anns = table.NormalizePrefixASN(anns)
	stats.PrefixASNRows = len(anns)
	log.Infof("%s: %d lines, %d announcements, %d unique", filepath.Base(opts.RIBText), ribStats.Lines, ribStats.Announcements, len(anns))

	return table.WriteFile(filepath.Join(opts.OutputDir, PrefixASNFile), func(w io.Writer) error {
		return table.WritePrefixASN(w, anns)
	})
}

// JoinStage loads the ASN table from dir, streams the prefix -> ASN table
// past it and writes the prefix -> country table. A missing or empty input
// table aborts the stage with ErrEmptyInput.
func JoinStage(dir string, stats *Stats) error {
	asnPath := filepath.Join(dir, ASNCountryFile)
	asns, err := readASNTable(asnPath)
	if err != nil {
		return err
	}
	if len(asns) == 0 {
		return errors.Wrapf(ErrEmptyInput, "%s has no rows", asnPath)
	}
	idx := join.NewIndex(asns)
	asns = nil

	annPath := filepath.Join(dir, PrefixASNFile)
	f, err := os.Open(annPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrEmptyInput, "%s missing", annPath)
		}
		return err
	}
	defer f.Close()

	var rows []table.PrefixCountry
	joinStats, err := join.Stream(idx, f, func(r table.PrefixCountry) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "read %s", annPath)
	}
	if joinStats.Rows == 0 {
		return errors.Wrapf(ErrEmptyInput, "%s has no rows", annPath)
	}
	stats.Join = joinStats

	rows = table.NormalizePrefixCountry(rows)
	stats.PrefixCountryRows = len(rows)
	return table.WriteFile(filepath.Join(dir, PrefixCountryFile), func(w io.Writer) error {
		return table.WritePrefixCountry(w, rows)
	})
}

func readASNTable(path string) ([]table.ASNCountry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrEmptyInput, "%s missing", path)
		}
		return nil, err
	}
	defer f.Close()
	return table.ReadASNCountry(f)
}
