package fetch

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arinURL = "https://ftp.arin.net/pub/stats/arin/delegated-arin-extended-20240101"

func newTestFetcher(t *testing.T) *HTTPFetcher {
	f := &HTTPFetcher{Client: &http.Client{}, Retries: 2, Backoff: time.Millisecond}
	httpmock.ActivateNonDefault(f.Client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return f
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC)

	s, err := NewSnapshot("", now)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Date: "20240305", Latest: true}, s)

	tpl := Template{
		Name:      "rib",
		URL:       "http://archive.routeviews.org/bgpdata/{year}.{month}/RIBS/rib.{date}.0000.bz2",
		LatestURL: "",
	}
	assert.Equal(t, "http://archive.routeviews.org/bgpdata/2024.03/RIBS/rib.20240305.0000.bz2", s.URL(tpl))

	arin := Template{
		Name:      "arin",
		URL:       "https://ftp.arin.net/pub/stats/arin/delegated-arin-extended-{date}",
		LatestURL: "https://ftp.arin.net/pub/stats/arin/delegated-arin-extended-latest",
	}
	assert.Equal(t, arin.LatestURL, s.URL(arin))

	s, err = NewSnapshot("20240101", now)
	require.NoError(t, err)
	assert.False(t, s.Latest)
	assert.Equal(t, arinURL, s.URL(arin))
	assert.Equal(t, "20240101", s.Key())

	_, err = NewSnapshot("2024-01-01", now)
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "rib.bz2", FileName(Template{Name: "rib"}, "http://x/RIBS/rib.20240101.0000.bz2"))
	assert.Equal(t, "apnic.gz", FileName(Template{Name: "apnic"}, "http://x/delegated-apnic-20240101.gz"))
	assert.Equal(t, "arin", FileName(Template{Name: "arin"}, arinURL))
}

func TestDateCache(t *testing.T) {
	c := DateCache{Dir: t.TempDir()}
	assert.False(t, c.Has("20240101", "arin"))

	require.NoError(t, os.MkdirAll(filepath.Dir(c.Path("20240101", "arin")), 0o755))
	require.NoError(t, os.WriteFile(c.Path("20240101", "arin"), nil, 0o644))
	assert.False(t, c.Has("20240101", "arin"), "empty file is not cached")

	require.NoError(t, os.WriteFile(c.Path("20240101", "arin"), []byte("x"), 0o644))
	assert.True(t, c.Has("20240101", "arin"))
}

func TestFetch(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, arinURL, httpmock.NewStringResponder(200, "arin|US|asn|64500|1|20240101|assigned\n"))

	dst := filepath.Join(t.TempDir(), "20240101", "arin")
	require.NoError(t, f.Fetch(context.Background(), arinURL, dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "arin|US|asn|64500|1|20240101|assigned\n", string(b))
}

func TestFetchRetries(t *testing.T) {
	f := newTestFetcher(t)
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, arinURL, func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewStringResponse(503, "busy"), nil
		}
		return httpmock.NewStringResponse(200, "ok"), nil
	})

	dst := filepath.Join(t.TempDir(), "arin")
	require.NoError(t, f.Fetch(context.Background(), arinURL, dst))
	assert.Equal(t, 3, calls)
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, arinURL, httpmock.NewStringResponder(404, ""))

	dst := filepath.Join(t.TempDir(), "arin")
	err := f.Fetch(context.Background(), arinURL, dst)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestFetchAllSkipsCached(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.net/arin-20240101", httpmock.NewStringResponder(200, "arin"))
	httpmock.RegisterResponder(http.MethodGet, "https://example.net/ripe-20240101.gz", httpmock.NewStringResponder(200, "ripe"))

	cache := DateCache{Dir: t.TempDir()}
	snap := Snapshot{Date: "20240101"}
	templates := []Template{
		{Name: "arin", URL: "https://example.net/arin-{date}"},
		{Name: "ripe", URL: "https://example.net/ripe-{date}.gz"},
	}

	paths, err := FetchAll(context.Background(), f, cache, snap, templates, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{cache.Path("20240101", "arin"), cache.Path("20240101", "ripe.gz")}, paths)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())

	again, err := FetchAll(context.Background(), f, cache, snap, templates, 2)
	require.NoError(t, err)
	assert.Equal(t, paths, again)
	assert.Equal(t, 2, httpmock.GetTotalCallCount(), "second run served from cache")
}

func TestFetchAllLatestFallsBack(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.net/arin-latest", httpmock.NewStringResponder(200, "arin"))
	httpmock.RegisterResponder(http.MethodGet, "https://example.net/rib.20240601.txt", httpmock.NewStringResponder(404, ""))
	httpmock.RegisterResponder(http.MethodGet, "https://example.net/rib.20240531.txt", httpmock.NewStringResponder(200, "rib"))

	cache := DateCache{Dir: t.TempDir()}
	snap, err := NewSnapshot("", time.Date(2024, 6, 1, 0, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	templates := []Template{
		{Name: "arin", URL: "https://example.net/arin-{date}", LatestURL: "https://example.net/arin-latest"},
		{Name: "rib", URL: "https://example.net/rib.{date}.txt"},
	}

	paths, err := FetchAll(context.Background(), f, cache, snap, templates, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{cache.Path("20240601", "arin"), cache.Path("20240531", "rib")}, paths)
	b, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "rib", string(b))
	assert.Equal(t, 3, httpmock.GetTotalCallCount())

	// the dated file is still missing; yesterday's copy comes from the cache
	_, err = FetchAll(context.Background(), f, cache, snap, templates, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, httpmock.GetTotalCallCount())
}

func TestFetchAllFixedDateDoesNotFallBack(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.net/rib.20240601.txt", httpmock.NewStringResponder(404, ""))
	httpmock.RegisterResponder(http.MethodGet, "https://example.net/rib.20240531.txt", httpmock.NewStringResponder(200, "rib"))

	_, err := FetchAll(context.Background(), f, DateCache{Dir: t.TempDir()}, Snapshot{Date: "20240601"},
		[]Template{{Name: "rib", URL: "https://example.net/rib.{date}.txt"}}, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSnapshotPrevious(t *testing.T) {
	assert.Equal(t, Snapshot{Date: "20231231", Latest: true}, Snapshot{Date: "20240101", Latest: true}.Previous())
	assert.Equal(t, Snapshot{Date: "20240229"}, Snapshot{Date: "20240301"}.Previous())
}

func TestFetchAllError(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.net/arin-20240101", httpmock.NewStringResponder(404, ""))

	_, err := FetchAll(context.Background(), f, DateCache{Dir: t.TempDir()}, Snapshot{Date: "20240101"},
		[]Template{{Name: "arin", URL: "https://example.net/arin-{date}"}}, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
