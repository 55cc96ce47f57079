package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

func TestCacheKey(t *testing.T) {
	d := entity.Descriptor{
		StockCode:   "600000.SH",
		CompanyName: "浦发银行",
		Title:       "2024年年度报告/更正版?",
		ReportDate:  "2025-03-29",
		URL:         "https://static.cninfo.com.cn/finalpage/2025-03-29/1222.PDF",
	}
	key := CacheKey(d)
	assert.True(t, strings.HasPrefix(key, "浦发银行：2024年年度报告_更正版__[2025-03-29]_"), key)
	assert.True(t, strings.HasSuffix(key, ".pdf"), key)
	assert.NotContains(t, key, "/")

	other := d
	other.StockCode = "600001.SH"
	assert.NotEqual(t, key, CacheKey(other))
	assert.Equal(t, key, CacheKey(d))

	html := d
	html.URL = "https://example.test/report.html?x=1"
	assert.True(t, strings.HasSuffix(CacheKey(html), ".html"))
}

func TestCacheKeyLongTitle(t *testing.T) {
	d := desc("https://example.test/long.pdf")
	d.CompanyName = "中国工商银行股份有限公司"
	d.Title = strings.Repeat("关于二〇二四年年度报告的补充更正公告", 6)

	key := CacheKey(d)
	assert.LessOrEqual(t, len(key), 255, "file name limit is in bytes")
	assert.True(t, utf8.ValidString(key), "cut on a rune boundary")
	assert.True(t, strings.HasSuffix(key, ".pdf"))

	c := NewDiskCache(t.TempDir(), nil)
	require.NoError(t, c.Put(context.Background(), d, []byte("%PDF-1.7")))
	got, ok, err := c.Get(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("%PDF-1.7"), got)
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateBytes("abc", 10))
	assert.Equal(t, "存", truncateBytes("存货", 4))
	assert.Equal(t, "存货", truncateBytes("存货", 6))
	assert.Equal(t, "", truncateBytes("存货", 2))
}

func TestDiskCacheRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports_pdf")
	c := NewDiskCache(dir, nil)
	d := desc("https://example.test/1.pdf")

	_, ok, err := c.Get(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(context.Background(), d, []byte(pdfBody)))
	body, ok, err := c.Get(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pdfBody, string(body))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

type memCache struct {
	docs map[string][]byte
	err  error
}

func (m *memCache) Get(_ context.Context, d entity.Descriptor) ([]byte, bool, error) {
	b, ok := m.docs[d.Identity()]
	return b, ok, nil
}

func (m *memCache) Put(_ context.Context, d entity.Descriptor, body []byte) error {
	if m.err != nil {
		return m.err
	}
	if m.docs == nil {
		m.docs = map[string][]byte{}
	}
	m.docs[d.Identity()] = body
	return nil
}

func TestCachingFetcher(t *testing.T) {
	calls := 0
	cache := &memCache{}
	f := NewCaching(countingFetcher(&calls, Success([]byte(pdfBody))), cache, nil)
	d := desc("https://example.test/1.pdf")

	first := f.Fetch(context.Background(), d)
	require.True(t, first.OK())
	assert.False(t, first.FromCache)

	second := f.Fetch(context.Background(), d)
	require.True(t, second.OK())
	assert.True(t, second.FromCache)
	assert.Equal(t, pdfBody, string(second.Body))
	assert.Equal(t, 1, calls)
}

func TestCachingFetcherSkipsFailures(t *testing.T) {
	calls := 0
	cache := &memCache{}
	f := NewCaching(countingFetcher(&calls, NotFound("status 404", nil)), cache, nil)
	res := f.Fetch(context.Background(), desc("https://example.test/1.pdf"))
	assert.Equal(t, KindNotFound, res.Kind)
	assert.Empty(t, cache.docs)
}

func TestCachingFetcherWriteFailureKeepsResult(t *testing.T) {
	calls := 0
	f := NewCaching(countingFetcher(&calls, Success([]byte(pdfBody))), &memCache{err: errors.New("disk full")}, nil)
	res := f.Fetch(context.Background(), desc("https://example.test/1.pdf"))
	assert.True(t, res.OK())
}

func TestTieredBackfills(t *testing.T) {
	fast := &memCache{}
	slow := &memCache{}
	d := desc("https://example.test/1.pdf")
	require.NoError(t, slow.Put(context.Background(), d, []byte(pdfBody)))

	tiers := Tiered{fast, slow}
	body, ok, err := tiers.Get(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pdfBody, string(body))
	assert.Equal(t, pdfBody, string(fast.docs[d.Identity()]))

	d2 := desc("https://example.test/2.pdf")
	d2.ReportDate = "2025-04-01"
	require.NoError(t, tiers.Put(context.Background(), d2, []byte("x")))
	assert.Contains(t, fast.docs, d2.Identity())
	assert.Contains(t, slow.docs, d2.Identity())
}
