package fetch

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const dateLayout = "20060102"

// Cache says where a downloaded file lives and whether it is already there.
type Cache interface {
	Path(key, name string) string
	Has(key, name string) bool
}

// DateCache keeps one directory per snapshot key: <Dir>/<key>/<name>.
type DateCache struct {
	Dir string
}

func (c DateCache) Path(key, name string) string {
	return filepath.Join(c.Dir, key, name)
}

// Has reports a non-empty file; an empty leftover is fetched again.
func (c DateCache) Has(key, name string) bool {
	fi, err := os.Stat(c.Path(key, name))
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// Snapshot selects the dated variant of every feed. Without a date the
// "latest" URLs are used and files are cached under today's date.
type Snapshot struct {
	Date   string
	Latest bool
}

func NewSnapshot(date string, now time.Time) (Snapshot, error) {
	if date == "" {
		return Snapshot{Date: now.UTC().Format(dateLayout), Latest: true}, nil
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Date: date}, nil
}

func (s Snapshot) Key() string { return s.Date }

// Previous is the same mode one day earlier.
func (s Snapshot) Previous() Snapshot {
	d, err := time.Parse(dateLayout, s.Date)
	if err != nil {
		return s
	}
	return Snapshot{Date: d.AddDate(0, 0, -1).Format(dateLayout), Latest: s.Latest}
}

// Template describes one remote feed. URL may hold {date}, {year}, {month}
// and {day}; LatestURL, when set, is used in latest mode.
type Template struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	LatestURL string `yaml:"latest-url"`
}

// URL resolves t for this snapshot.
func (s Snapshot) URL(t Template) string {
	if s.Latest && t.LatestURL != "" {
		return t.LatestURL
	}
	return strings.NewReplacer(
		"{date}", s.Date,
		"{year}", s.Date[0:4],
		"{month}", s.Date[4:6],
		"{day}", s.Date[6:8],
	).Replace(t.URL)
}
