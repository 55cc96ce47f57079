package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/listing"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, time.Now)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, now func() time.Time) int {
	cfg, err := common.LoadDiscover("datares-discover", args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "datares-discover: %v\n", err)
		return 1
	}
	logger := common.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	ctx = common.WithRunID(ctx, uuid.NewString())
	log := common.LoggerFromContext(ctx, logger)

	crawlCfg, err := crawlConfig(cfg)
	if err != nil {
		log.Error("discover.config.failed", "error", err)
		return 1
	}
	client := listing.NewClient(listing.ClientConfig{
		Endpoint:  cfg.ListingURL,
		PageSize:  cfg.PageSize,
		MaxPages:  cfg.MaxPages,
		Rate:      cfg.Rate,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Referer:   cfg.Referer,
	}, logger)
	checker := listing.NewLinkChecker(&http.Client{Timeout: cfg.Timeout}, cfg.UserAgent, cfg.Referer)

	res, err := listing.NewCrawler(crawlCfg, client, checker, logger).Run(ctx)
	if err != nil {
		log.Error("discover.failed", "error", err)
		return 1
	}
	if len(res.Descriptors) == 0 {
		log.Warn("discover.empty", "announcements", res.Announcements)
		fmt.Fprintln(stdout, "no reports found, nothing written")
		return 0
	}

	path := filepath.Join(cfg.OutputDir, listing.FileName(crawlCfg, now()))
	if err := listing.WriteCSV(path, res.Descriptors); err != nil {
		log.Error("discover.write.failed", "path", path, "error", err)
		return 1
	}

	fmt.Fprintf(stdout, "announcements: %d\n", res.Announcements)
	for _, reason := range res.SortedReasons() {
		fmt.Fprintf(stdout, "  filtered %s: %d\n", reason, res.Filtered[reason])
	}
	if cfg.Verify {
		fmt.Fprintf(stdout, "unreachable: %d\n", res.Unreachable)
	}
	if res.QueryErrors > 0 {
		fmt.Fprintf(stdout, "query errors: %d\n", res.QueryErrors)
	}
	fmt.Fprintf(stdout, "reports: %d\n", len(res.Descriptors))
	fmt.Fprintf(stdout, "written: %s\n", path)
	return 0
}

func crawlConfig(cfg *common.DiscoverConfig) (listing.CrawlConfig, error) {
	start, err := time.Parse("2006-01-02", cfg.Start)
	if err != nil {
		return listing.CrawlConfig{}, common.FatalConfigError("start", err)
	}
	end, err := time.Parse("2006-01-02", cfg.End)
	if err != nil {
		return listing.CrawlConfig{}, common.FatalConfigError("end", err)
	}
	rt, ok := constants.ParseReportType(cfg.ReportType)
	if !ok {
		return listing.CrawlConfig{}, common.FatalConfigErrorf("unknown report type %q", cfg.ReportType)
	}
	return listing.CrawlConfig{
		Start:      start,
		End:        end,
		ReportType: rt,
		Exchanges:  cfg.Exchanges,
		Mode:       cfg.Mode,
		TargetYear: cfg.TargetYear,
		StaticURL:  cfg.StaticURL,
		Verify:     cfg.Verify,
	}, nil
}
