package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
)

const (
	maxEmptyPages = 3
	pagesPastEnd  = 3
	maxPageBytes  = 8 << 20
)

// Exchanges are the query columns the listing endpoint understands.
var Exchanges = map[string]string{
	"sse":  "上交所",
	"szse": "深交所",
	"bj":   "北交所",
	"neeq": "新三板",
	"star": "科创板",
}

// Announcement is one row of the query response.
type Announcement struct {
	SecCode           string `json:"secCode"`
	SecName           string `json:"secName"`
	AnnouncementTitle string `json:"announcementTitle"`
	AnnouncementTime  any    `json:"announcementTime"`
	AdjunctURL        string `json:"adjunctUrl"`
}

type page struct {
	TotalPages    int            `json:"totalpages"`
	Announcements []Announcement `json:"announcements"`
}

func (a Announcement) key() string {
	return strings.Join([]string{a.SecCode, a.AnnouncementTitle, fmt.Sprint(a.AnnouncementTime), a.AdjunctURL}, "\x00")
}

// Query is one paged search: an exchange column, a category and a date window.
type Query struct {
	Column   string
	Category string
	Window   Window
}

type ClientConfig struct {
	Endpoint  string
	PageSize  int
	MaxPages  int
	Rate      float64 // requests per second, 0 = unlimited
	Timeout   time.Duration
	UserAgent string
	Referer   string
}

// Client pages through the announcement query endpoint.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = common.DefaultListingURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// WithHTTPClient swaps the HTTP client (tests).
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Fetch pages through q and returns the announcements with repeats removed.
// Paging stops at an empty page, pagesPastEnd pages beyond the reported total,
// after maxEmptyPages pages without new rows, or at MaxPages. Announcements
// gathered before a failing page are returned with the error.
func (c *Client) Fetch(ctx context.Context, q Query) ([]Announcement, error) {
	log := common.LoggerFromContext(ctx, c.logger).With("column", q.Column, "se_date", q.Window.SeDate())

	var (
		out   []Announcement
		seen  = map[string]struct{}{}
		total = -1
		empty = 0
	)
	for pageNum := 1; pageNum <= c.cfg.MaxPages; pageNum++ {
		if total > 0 && pageNum > total+pagesPastEnd {
			log.Debug("listing.page.past_end", "page", pageNum, "total", total)
			break
		}
		if total > 0 && pageNum > total && empty >= maxEmptyPages-1 {
			break
		}
		if total == 0 && pageNum > 1 {
			break
		}

		p, err := c.page(ctx, q, pageNum)
		if err != nil {
			log.Warn("listing.page.failed", "page", pageNum, "error", err)
			return out, err
		}
		if total < 0 {
			total = p.TotalPages
			if total == 0 && len(p.Announcements) == 0 {
				log.Debug("listing.query.empty")
				break
			}
		}
		if len(p.Announcements) == 0 {
			break
		}

		added := 0
		for _, a := range p.Announcements {
			k := a.key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, a)
			added++
		}
		log.Debug("listing.page.ok", "page", pageNum, "total", total, "rows", len(p.Announcements), "new", added)

		if added == 0 {
			empty++
			if empty >= maxEmptyPages {
				break
			}
		} else {
			empty = 0
		}
	}
	log.Info("listing.query.done", "announcements", len(out), "total_pages", total)
	return out, nil
}

func (c *Client) page(ctx context.Context, q Query, pageNum int) (page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return page{}, err
	}

	form := url.Values{}
	form.Set("pageNum", strconv.Itoa(pageNum))
	form.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
	form.Set("column", q.Column)
	form.Set("tabName", "fulltext")
	form.Set("plate", "")
	form.Set("stock", "")
	form.Set("searchkey", "")
	form.Set("secid", "")
	form.Set("category", q.Category)
	form.Set("trade", "")
	form.Set("seDate", q.Window.SeDate())
	form.Set("sortName", "")
	form.Set("sortType", "")
	form.Set("isHLtitle", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return page{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return page{}, fmt.Errorf("post page %d: %w", pageNum, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return page{}, fmt.Errorf("page %d: status %d", pageNum, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return page{}, fmt.Errorf("read page %d: %w", pageNum, err)
	}
	if err := validatePage(body); err != nil {
		return page{}, fmt.Errorf("page %d: %w", pageNum, err)
	}
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return page{}, fmt.Errorf("decode page %d: %w", pageNum, err)
	}
	return p, nil
}
