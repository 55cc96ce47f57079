package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
)

// ListingPrefix starts every file written by the listing tool.
const ListingPrefix = "listed_companies_"

// TimestampLayout is the run stamp embedded in generated file names.
const TimestampLayout = "20060102_150405"

// ListingName is the parsed form of
// listed_companies_<start>_<end>_<type>_<yyyymmdd>_<hhmmss>.csv.
type ListingName struct {
	Start     string // yyyymmdd
	End       string
	Type      string // category short name, e.g. ndbg
	Timestamp time.Time
}

// Tag is "<start>_<end>_<type>", used to name the output tables.
func (n ListingName) Tag() string {
	return n.Start + "_" + n.End + "_" + n.Type
}

// FileName renders the listing file name for n.
func (n ListingName) FileName() string {
	return ListingPrefix + n.Tag() + "_" + n.Timestamp.Format(TimestampLayout) + ".csv"
}

// ParseListingName parses a base name; ok is false when it does not follow the convention.
// A missing or malformed timestamp leaves Timestamp zero.
func ParseListingName(name string) (ListingName, bool) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if !strings.HasPrefix(base, ListingPrefix) {
		return ListingName{}, false
	}
	parts := strings.Split(strings.TrimPrefix(base, ListingPrefix), "_")
	if len(parts) < 3 {
		return ListingName{}, false
	}
	n := ListingName{Start: parts[0], End: parts[1], Type: parts[2]}
	if len(parts) >= 5 {
		if ts, err := time.ParseInLocation(TimestampLayout, parts[3]+"_"+parts[4], time.Local); err == nil {
			n.Timestamp = ts
		}
	}
	return n, true
}

// FindLatest returns the newest listing CSV in dir, ranked by the timestamp in
// its name and falling back to the modification time.
func FindLatest(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	matches, err := filepath.Glob(filepath.Join(dir, ListingPrefix+"*_*.csv"))
	if err != nil {
		return "", common.FatalConfigError("scan "+dir, err)
	}
	if len(matches) == 0 {
		return "", common.FatalConfigErrorf("no %s*.csv file in %s", ListingPrefix, dir)
	}

	type candidate struct {
		path string
		at   time.Time
	}
	cands := make([]candidate, 0, len(matches))
	for _, m := range matches {
		c := candidate{path: m}
		if n, ok := ParseListingName(m); ok && !n.Timestamp.IsZero() {
			c.at = n.Timestamp
		} else if fi, err := os.Stat(m); err == nil {
			c.at = fi.ModTime()
		}
		cands = append(cands, c)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if !cands[i].at.Equal(cands[j].at) {
			return cands[i].at.After(cands[j].at)
		}
		return cands[i].path > cands[j].path
	})
	return cands[0].path, nil
}

// Resolve picks the descriptor file: path when given, otherwise the newest
// listing file in dir.
func Resolve(path, dir string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", common.FatalConfigError(fmt.Sprintf("descriptor file %q", path), err)
		}
		return path, nil
	}
	return FindLatest(dir)
}

// OutputTag derives the output name segment from a descriptor file name, or "".
func OutputTag(path string) string {
	if n, ok := ParseListingName(path); ok {
		return n.Tag()
	}
	return ""
}
