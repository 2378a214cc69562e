package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asncountry/internal/rib"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "asncountry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkDir, c.WorkDir)
	assert.Equal(t, DefaultOutputDir, c.OutputDir)
	assert.Len(t, c.Registries, 5)
	assert.Equal(t, "arin", c.Registries[0].Name)
	assert.Equal(t, "rib", c.RIB.Name)
	assert.Equal(t, "bgpdump", c.Decoder.Command)
	assert.Equal(t, rib.Layout{ASPath: 6, Prefix: 5}, c.Decoder.Layout())
	assert.Equal(t, 3, c.Fetch.Retries)
	assert.Equal(t, 10*time.Minute, c.Fetch.Timeout)
	assert.Equal(t, 4, c.Fetch.Parallel)
	assert.Equal(t, "INFO", c.LogLevel)
	assert.Empty(t, c.Date)
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, `
work-dir: /var/cache/asncountry
date: "20240101"
registries:
  - name: test
    url: https://example.net/delegated-test-{date}
decoder:
  command: mrt2text
  aspath-field: 4
  prefix-field: 5
compress: gzip
fetch:
  timeout: 30s
  parallel: 1
ipv6-size-is-prefix-length: true
log-level: DEBUG
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/asncountry", c.WorkDir)
	assert.Equal(t, "20240101", c.Date)
	require.Len(t, c.Registries, 1)
	assert.Equal(t, "https://example.net/delegated-test-{date}", c.Registries[0].URL)
	assert.Equal(t, rib.DefaultLayout, c.Decoder.Layout())
	assert.Equal(t, "gzip", c.Compress)
	assert.Equal(t, 30*time.Second, c.Fetch.Timeout)
	assert.Equal(t, 1, c.Fetch.Parallel)
	assert.True(t, c.IPv6SizeIsPrefixLength)
}

func TestLoadErrors(t *testing.T) {
	for name, body := range map[string]string{
		"yaml":     "work-dir: [",
		"date":     `date: "2024-01-01"`,
		"compress": "compress: lz4",
		"columns":  "decoder: {command: x, aspath-field: 5, prefix-field: 5}",
		"dup":      "registries: [{name: a, url: x}, {name: a, url: y}]",
		"dup-rib":  "registries: [{name: rib, url: x}]",
		"level":    "log-level: LOUD",
	} {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}
