package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

// Cache stores fetched documents keyed by descriptor identity.
type Cache interface {
	Get(ctx context.Context, d entity.Descriptor) ([]byte, bool, error)
	Put(ctx context.Context, d entity.Descriptor, body []byte) error
}

var reUnsafeName = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)

// CacheKey is the file name for d: "<company>：<title>_[<date>]_<hash>.<ext>",
// with path-hostile characters replaced. The identity hash keeps two reports
// with the same title apart.
func CacheKey(d entity.Descriptor) string {
	base := fmt.Sprintf("%s：%s_[%s]", d.CompanyName, d.Title, d.ReportDate)
	base = truncateBytes(reUnsafeName.ReplaceAllString(base, "_"), maxNameBytes)
	sum := sha1.Sum([]byte(d.Identity()))
	return base + "_" + hex.EncodeToString(sum[:4]) + "." + docExt(d.URL)
}

// maxNameBytes leaves room for the hash and extension under the 255 byte
// file name limit.
const maxNameBytes = 180

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func docExt(rawURL string) string {
	ext := constants.NormalizeExt(path.Ext(strings.SplitN(rawURL, "?", 2)[0]))
	if constants.MapExtToKind(ext) == constants.Unknown {
		return "pdf"
	}
	return ext
}

// DiskCache keeps documents in a flat directory.
type DiskCache struct {
	dir    string
	logger *slog.Logger
}

func NewDiskCache(dir string, logger *slog.Logger) *DiskCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiskCache{dir: dir, logger: logger}
}

func (c *DiskCache) Path(d entity.Descriptor) string {
	return filepath.Join(c.dir, CacheKey(d))
}

func (c *DiskCache) Get(_ context.Context, d entity.Descriptor) ([]byte, bool, error) {
	body, err := os.ReadFile(c.Path(d))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache: %w", err)
	}
	if len(body) == 0 {
		return nil, false, nil
	}
	return body, true, nil
}

// Put writes through a temp file and rename so readers never see a partial document.
func (c *DiskCache) Put(_ context.Context, d entity.Descriptor, body []byte) error {
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path(d)); err != nil {
		return fmt.Errorf("rename into cache: %w", err)
	}
	return nil
}

// Tiered reads through caches in order, back-filling faster tiers on a hit,
// and writes to every tier.
type Tiered []Cache

func (t Tiered) Get(ctx context.Context, d entity.Descriptor) ([]byte, bool, error) {
	var errs []error
	for i, c := range t {
		body, ok, err := c.Get(ctx, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		for j := 0; j < i; j++ {
			if err := t[j].Put(ctx, d, body); err != nil {
				errs = append(errs, err)
			}
		}
		return body, true, errors.Join(errs...)
	}
	return nil, false, errors.Join(errs...)
}

func (t Tiered) Put(ctx context.Context, d entity.Descriptor, body []byte) error {
	var errs []error
	for _, c := range t {
		if err := c.Put(ctx, d, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Caching consults the cache before delegating and stores fresh successes.
type Caching struct {
	next   Fetcher
	cache  Cache
	logger *slog.Logger
}

func NewCaching(next Fetcher, cache Cache, logger *slog.Logger) *Caching {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caching{next: next, cache: cache, logger: logger}
}

func (c *Caching) Fetch(ctx context.Context, d entity.Descriptor) Result {
	log := c.logger.With("identity", d.Identity())

	body, ok, err := c.cache.Get(ctx, d)
	if err != nil {
		log.Warn("fetch.cache.read_failed", "error", err)
	}
	if ok {
		log.Debug("fetch.cache.hit", "bytes", len(body))
		res := Success(body)
		res.FromCache = true
		return res
	}

	res := c.next.Fetch(ctx, d)
	if !res.OK() {
		return res
	}
	if err := c.cache.Put(ctx, d, res.Body); err != nil {
		// the document is still usable; only the local copy is lost
		log.Warn("fetch.cache.write_failed", "error", err)
	}
	return res
}
