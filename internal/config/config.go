// Package config loads the YAML settings of a build run.
package config

import (
	"os"
	"time"

	logging "github.com/op/go-logging"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"asncountry/internal/compress"
	"asncountry/internal/fetch"
	"asncountry/internal/rib"
)

var log = logging.MustGetLogger("config")

const (
	DefaultWorkDir   = "./.cache/asncountry"
	DefaultOutputDir = "./output"
	DefaultLogLevel  = "INFO"
)

// DecoderConfig names the routing table decoder and the columns of its
// TABLE_DUMP2 output.
type DecoderConfig struct {
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	ASPathField int      `yaml:"aspath-field"`
	PrefixField int      `yaml:"prefix-field"`
}

func (d DecoderConfig) Layout() rib.Layout {
	return rib.Layout{ASPath: d.ASPathField, Prefix: d.PrefixField}
}

type FetchConfig struct {
	Retries  int           `yaml:"retries"`
	Timeout  time.Duration `yaml:"timeout"`
	Parallel int           `yaml:"parallel"`
}

type Config struct {
	WorkDir   string `yaml:"work-dir"`
	OutputDir string `yaml:"output-dir"`
	// Date selects the YYYYMMDD snapshot; empty means latest.
	Date       string           `yaml:"date"`
	Registries []fetch.Template `yaml:"registries"`
	RIB        fetch.Template   `yaml:"rib"`
	Decoder    DecoderConfig    `yaml:"decoder"`
	Compress   string           `yaml:"compress"`
	Fetch      FetchConfig      `yaml:"fetch"`
	// The registry stats format stores a prefix length, not a size, for ipv6.
	IPv6SizeIsPrefixLength bool   `yaml:"ipv6-size-is-prefix-length"`
	LogFile                string `yaml:"log-file"`
	LogLevel               string `yaml:"log-level"`
}

func DefaultRegistries() []fetch.Template {
	return []fetch.Template{
		{
			Name:      "arin",
			URL:       "https://ftp.arin.net/pub/stats/arin/delegated-arin-extended-{date}",
			LatestURL: "https://ftp.arin.net/pub/stats/arin/delegated-arin-extended-latest",
		},
		{
			Name:      "ripencc",
			URL:       "https://ftp.ripe.net/pub/stats/ripencc/{year}/delegated-ripencc-extended-{date}.bz2",
			LatestURL: "https://ftp.ripe.net/pub/stats/ripencc/delegated-ripencc-extended-latest",
		},
		{
			Name:      "apnic",
			URL:       "https://ftp.apnic.net/stats/apnic/{year}/delegated-apnic-extended-{date}.gz",
			LatestURL: "https://ftp.apnic.net/stats/apnic/delegated-apnic-extended-latest",
		},
		{
			Name:      "lacnic",
			URL:       "https://ftp.lacnic.net/pub/stats/lacnic/delegated-lacnic-extended-{date}",
			LatestURL: "https://ftp.lacnic.net/pub/stats/lacnic/delegated-lacnic-extended-latest",
		},
		{
			Name:      "afrinic",
			URL:       "https://ftp.afrinic.net/pub/stats/afrinic/{year}/delegated-afrinic-extended-{date}",
			LatestURL: "https://ftp.afrinic.net/pub/stats/afrinic/delegated-afrinic-extended-latest",
		},
	}
}

func DefaultRIB() fetch.Template {
	return fetch.Template{
		Name: "rib",
		URL:  "http://archive.routeviews.org/bgpdata/{year}.{month}/RIBS/rib.{date}.0000.bz2",
	}
}

func (c *Config) Validate() error {
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Date != "" {
		if _, err := time.Parse("20060102", c.Date); err != nil {
			return errors.Errorf("date %q: want YYYYMMDD", c.Date)
		}
	}
	if len(c.Registries) == 0 {
		c.Registries = DefaultRegistries()
	}
	if c.RIB.URL == "" {
		c.RIB = DefaultRIB()
	}
	if c.RIB.Name == "" {
		c.RIB.Name = "rib"
	}
	// names double as cache file names
	seen := make(map[string]bool)
	for _, r := range append(c.Registries, c.RIB) {
		if r.Name == "" {
			continue
		}
		if seen[r.Name] {
			return errors.Errorf("source name %q used twice", r.Name)
		}
		seen[r.Name] = true
	}

	if c.Decoder.Command == "" {
		// bgpdump -m prints the peer AS in column 4 and the path in column 6
		c.Decoder = DecoderConfig{Command: "bgpdump", Args: []string{"-m"}, ASPathField: 6, PrefixField: 5}
	}
	if c.Decoder.ASPathField == 0 && c.Decoder.PrefixField == 0 {
		c.Decoder.ASPathField = rib.DefaultLayout.ASPath
		c.Decoder.PrefixField = rib.DefaultLayout.Prefix
	}
	if c.Decoder.ASPathField < 0 || c.Decoder.PrefixField < 0 || c.Decoder.ASPathField == c.Decoder.PrefixField {
		return errors.Errorf("decoder: bad columns aspath=%d prefix=%d", c.Decoder.ASPathField, c.Decoder.PrefixField)
	}

	if _, err := compress.ParseFormat(c.Compress); err != nil {
		return err
	}

	// negative disables retries
	if c.Fetch.Retries == 0 {
		c.Fetch.Retries = 3
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 10 * time.Minute
	}
	if c.Fetch.Parallel <= 0 {
		c.Fetch.Parallel = 4
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := logging.LogLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log-level")
	}
	return nil
}

// Load reads a YAML config. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path == "" {
		return c, c.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		log.Warningf("config %s not found, using defaults", path)
		return c, c.Validate()
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}
