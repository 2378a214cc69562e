// Package fetch downloads registry feeds and routing snapshots into a
// date-keyed cache. Files already present are never downloaded again.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	units "github.com/docker/go-units"
	logging "github.com/op/go-logging"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"asncountry/internal/compress"
)

var log = logging.MustGetLogger("fetch")

var ErrNotFound = errors.New("fetch: not found")

// Fetcher stores the body of url at dst.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) error
}

type HTTPFetcher struct {
	Client *http.Client
	// Retries is the number of extra attempts after a transient failure.
	Retries uint64
	// Backoff is the first retry delay; it grows exponentially.
	Backoff time.Duration
}

func NewHTTPFetcher(timeout time.Duration, retries uint64) *HTTPFetcher {
	return &HTTPFetcher{
		Client:  &http.Client{Timeout: timeout},
		Retries: retries,
		Backoff: time.Second,
	}
}

func (f *HTTPFetcher) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.Backoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, f.Retries), ctx)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, dst string) error {
	op := func() error {
		return f.fetchOnce(ctx, rawURL, dst)
	}
	notify := func(err error, wait time.Duration) {
		log.Warningf("fetch %s: %s, retrying in %s", rawURL, err, wait)
	}
	return backoff.RetryNotify(op, f.newBackOff(ctx), notify)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(errors.Wrapf(ErrNotFound, "%s", rawURL))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %s", rawURL, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("%s: %s", rawURL, resp.Status))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return backoff.Permanent(err)
	}
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return backoff.Permanent(err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	log.Infof("fetched %s (%s)", rawURL, units.HumanSize(float64(n)))
	return os.Rename(tmp, dst)
}

// FileName is the cache name for a feed: its template name plus the
// compression suffix of the remote file, if any.
func FileName(t Template, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return t.Name
	}
	if ext := path.Ext(u.Path); compress.Compressed(ext) {
		return t.Name + ext
	}
	return t.Name
}

// FetchAll makes sure every template is present in the cache for snap and
// returns the local paths in template order. At most parallel downloads run
// at once. In latest mode a dated-only template whose file for today is not
// published yet falls back to the previous day, cached under that day.
func FetchAll(ctx context.Context, f Fetcher, cache Cache, snap Snapshot, templates []Template, parallel int) ([]string, error) {
	paths := make([]string, len(templates))
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, t := range templates {
		i, t := i, t
		g.Go(func() error {
			dst, err := fetchTemplate(ctx, f, cache, snap, t)
			if err != nil {
				return errors.Wrapf(err, "fetch %s", t.Name)
			}
			paths[i] = dst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func fetchTemplate(ctx context.Context, f Fetcher, cache Cache, snap Snapshot, t Template) (string, error) {
	dst, err := fetchCached(ctx, f, cache, snap, t)
	if err == nil || !snap.Latest || t.LatestURL != "" || !errors.Is(err, ErrNotFound) {
		return dst, err
	}
	prev := snap.Previous()
	log.Warningf("%s: nothing published for %s yet, using %s", t.Name, snap.Date, prev.Date)
	return fetchCached(ctx, f, cache, prev, t)
}

func fetchCached(ctx context.Context, f Fetcher, cache Cache, snap Snapshot, t Template) (string, error) {
	rawURL := snap.URL(t)
	name := FileName(t, rawURL)
	dst := cache.Path(snap.Key(), name)
	if cache.Has(snap.Key(), name) {
		log.Debugf("%s: cached at %s", t.Name, dst)
		return dst, nil
	}
	if err := f.Fetch(ctx, rawURL, dst); err != nil {
		return "", err
	}
	return dst, nil
}
