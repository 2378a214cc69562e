package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"asncountry/internal/compress"
	"asncountry/internal/config"
	"asncountry/internal/fetch"
	"asncountry/internal/mrt"
)

const ribTextFile = "rib.txt"

// Build fetches the configured snapshot into the work directory, decodes
// the routing table and runs the transform stages.
func Build(ctx context.Context, cfg *config.Config, f fetch.Fetcher, dec mrt.Decoder, now time.Time) (*Stats, error) {
	snap, err := fetch.NewSnapshot(cfg.Date, now)
	if err != nil {
		return nil, err
	}
	format, err := compress.ParseFormat(cfg.Compress)
	if err != nil {
		return nil, err
	}
	if snap.Latest {
		log.Infof("using latest feeds, cached under %s", snap.Key())
	} else {
		log.Infof("using snapshot %s", snap.Key())
	}

	cache := fetch.DateCache{Dir: cfg.WorkDir}
	templates := append(append([]fetch.Template{}, cfg.Registries...), cfg.RIB)
	paths, err := fetch.FetchAll(ctx, f, cache, snap, templates, cfg.Fetch.Parallel)
	if err != nil {
		return nil, err
	}
	ribPath := paths[len(paths)-1]

	// decoded text sits beside the snapshot it came from, which in latest
	// mode may be an earlier day than snap
	ribKey := filepath.Base(filepath.Dir(ribPath))
	ribText := cache.Path(ribKey, ribTextFile)
	if cache.Has(ribKey, ribTextFile) {
		log.Debugf("decoded routing table cached at %s", ribText)
	} else {
		if err := os.MkdirAll(filepath.Dir(ribText), 0o755); err != nil {
			return nil, err
		}
		if err := mrt.DecodeFile(ctx, dec, ribPath, ribText); err != nil {
			return nil, errors.Wrap(err, "decode routing table")
		}
	}

	return Run(ctx, Options{
		Delegations:            paths[:len(paths)-1],
		RIBText:                ribText,
		Layout:                 cfg.Decoder.Layout(),
		OutputDir:              cfg.OutputDir,
		IPv6SizeIsPrefixLength: cfg.IPv6SizeIsPrefixLength,
		Compress:               format,
	})
}
