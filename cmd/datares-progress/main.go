package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/aggregate"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/export"
	"github.com/joseph-ayodele/datares-tracker/internal/progress"
)

var statusOrder = []constants.ProgressStatus{
	constants.StatusPending,
	constants.StatusInFlight,
	constants.StatusDone,
	constants.StatusFailed,
}

type report struct {
	Counts map[constants.ProgressStatus]int `json:"counts"`
	Failed []entity.ProgressEntry           `json:"failed,omitempty"`
	Long   string                           `json:"long,omitempty"`
	Wide   string                           `json:"wide,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := common.LoadInspect("datares-progress", args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "datares-progress: %v\n", err)
		return 1
	}
	logger := common.NewLogger(stderr, cfg.Log.Level, "text")

	if !isPostgres(cfg.Progress.DSN) {
		if _, err := os.Stat(cfg.Progress.DSN); err != nil {
			fmt.Fprintf(stderr, "datares-progress: %v\n", err)
			return 1
		}
	}
	store, err := progress.Open(ctx, cfg.Progress, logger)
	if err != nil {
		fmt.Fprintf(stderr, "datares-progress: open: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "datares-progress: load: %v\n", err)
		return 1
	}

	rep := report{Counts: progress.Counts(entries)}
	if cfg.Failed {
		rep.Failed = progress.Failed(entries)
	}
	if cfg.ExportDir != "" {
		agg := rebuild(entries)
		names := export.NamesFor(cfg.Tag, time.Now())
		p, err := export.NewService(logger).WriteTables(ctx, cfg.ExportDir, names, agg.Long(), agg.Wide())
		if err != nil {
			fmt.Fprintf(stderr, "datares-progress: export: %v\n", err)
			return 1
		}
		rep.Long, rep.Wide = p.Long, p.Wide
	}

	if cfg.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return 1
		}
		return 0
	}
	printReport(stdout, rep)
	return 0
}

// rebuild replays the facts of every finished document.
func rebuild(entries map[string]entity.ProgressEntry) *aggregate.Aggregator {
	agg := aggregate.New()
	for id, e := range entries {
		if e.Status != constants.StatusDone {
			continue
		}
		agg.AddIdentity(id, storedDescriptor(id, e), e.Facts)
	}
	return agg
}

// storedDescriptor recovers the row metadata of a finished entry: from its
// first fact, or from the code|date|type identity when nothing was found.
func storedDescriptor(id string, e entity.ProgressEntry) entity.Descriptor {
	if len(e.Facts) > 0 {
		f := e.Facts[0]
		return entity.Descriptor{
			StockCode:   f.StockCode,
			CompanyName: f.CompanyName,
			Title:       f.ReportName,
			ReportDate:  f.ReportDate,
			URL:         f.URL,
		}
	}
	d := entity.Descriptor{URL: e.URL}
	if parts := strings.Split(id, "|"); len(parts) == 3 {
		d.StockCode, d.ReportDate = parts[0], parts[1]
	}
	return d
}

func printReport(w io.Writer, rep report) {
	total := 0
	for _, st := range statusOrder {
		fmt.Fprintf(w, "%-10s %d\n", st, rep.Counts[st])
		total += rep.Counts[st]
	}
	fmt.Fprintf(w, "%-10s %d\n", "TOTAL", total)
	for _, e := range rep.Failed {
		fmt.Fprintf(w, "  %s attempts=%d %s\n    %s\n", e.Identity, e.Attempts, e.Reason, e.URL)
	}
	if rep.Long != "" {
		fmt.Fprintf(w, "long table: %s\nwide table: %s\n", rep.Long, rep.Wide)
	}
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
