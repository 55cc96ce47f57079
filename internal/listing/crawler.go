package listing

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/source"
)

type CrawlConfig struct {
	Start         time.Time
	End           time.Time
	ReportType    constants.ReportType
	Exchanges     []string
	Mode          string // day | week | all
	TargetYear    int    // 0 derives the years from the window
	StaticURL     string
	Verify        bool
	VerifyWorkers int
}

// Result is the outcome of one crawl.
type Result struct {
	Descriptors   []entity.Descriptor
	Announcements int
	Duplicates    int
	Filtered      map[string]int // rejection reason -> count
	Unreachable   int
	QueryErrors   int
}

// Crawler runs every (exchange, window) query and reduces the announcements to
// one descriptor per company.
type Crawler struct {
	cfg     CrawlConfig
	client  *Client
	checker *LinkChecker
	logger  *slog.Logger
}

func NewCrawler(cfg CrawlConfig, client *Client, checker *LinkChecker, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VerifyWorkers <= 0 {
		cfg.VerifyWorkers = 10
	}
	if cfg.StaticURL == "" {
		cfg.StaticURL = common.DefaultStaticURL
	}
	return &Crawler{cfg: cfg, client: client, checker: checker, logger: logger}
}

func (c *Crawler) Run(ctx context.Context) (Result, error) {
	log := common.LoggerFromContext(ctx, c.logger)
	category := c.cfg.ReportType.Category()
	if category == "" {
		return Result{}, common.FatalConfigErrorf("report type %q has no listing category", c.cfg.ReportType)
	}
	for _, ex := range c.cfg.Exchanges {
		if _, ok := Exchanges[ex]; !ok {
			return Result{}, common.FatalConfigErrorf("unknown exchange %q", ex)
		}
	}

	filter := Filter{Years: TargetYears(c.cfg.Start, c.cfg.End)}
	if c.cfg.TargetYear > 0 {
		filter.Years = []int{c.cfg.TargetYear}
	}
	windows := Windows(c.cfg.Start, c.cfg.End, c.cfg.Mode)
	log.Info("listing.crawl.start",
		"exchanges", c.cfg.Exchanges,
		"windows", len(windows),
		"category", category,
		"years", filter.Years,
	)

	res := Result{Filtered: map[string]int{}}
	seen := map[string]struct{}{}
	var kept []entity.Descriptor
	for _, ex := range c.cfg.Exchanges {
		for _, w := range windows {
			anns, err := c.client.Fetch(ctx, Query{Column: ex, Category: category, Window: w})
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.QueryErrors++
			}
			for _, a := range anns {
				k := a.key()
				if _, dup := seen[k]; dup {
					res.Duplicates++
					continue
				}
				seen[k] = struct{}{}
				res.Announcements++

				d := ToDescriptor(a, c.cfg.StaticURL, c.cfg.ReportType)
				if reason := filter.Reason(d.Title); reason != "" {
					res.Filtered[reason]++
					continue
				}
				kept = append(kept, d)
			}
		}
	}

	if c.cfg.Verify && c.checker != nil {
		var err error
		kept, err = c.verify(ctx, kept)
		if err != nil {
			return res, err
		}
		res.Unreachable = res.Announcements - sumFiltered(res.Filtered) - len(kept)
	}

	res.Descriptors = KeepNewest(kept)
	log.Info("listing.crawl.done",
		"announcements", res.Announcements,
		"duplicates", res.Duplicates,
		"filtered", sumFiltered(res.Filtered),
		"unreachable", res.Unreachable,
		"query_errors", res.QueryErrors,
		"descriptors", len(res.Descriptors),
	)
	return res, nil
}

func (c *Crawler) verify(ctx context.Context, ds []entity.Descriptor) ([]entity.Descriptor, error) {
	ok := make([]bool, len(ds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.VerifyWorkers)
	for i, d := range ds {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			ok[i] = c.checker.Reachable(gctx, d.URL)
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := ds[:0:0]
	for i, d := range ds {
		if ok[i] {
			out = append(out, d)
		} else {
			c.logger.Debug("listing.verify.unreachable", "url", d.URL)
		}
	}
	return out, nil
}

func sumFiltered(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// FileName names the listing CSV for cfg written at now.
func FileName(cfg CrawlConfig, now time.Time) string {
	return source.ListingName{
		Start:     cfg.Start.Format("20060102"),
		End:       cfg.End.Format("20060102"),
		Type:      cfg.ReportType.ShortName(),
		Timestamp: now,
	}.FileName()
}

// SortedReasons lists the rejection reasons of r in a stable order.
func (r Result) SortedReasons() []string {
	out := make([]string, 0, len(r.Filtered))
	for k := range r.Filtered {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
