package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/datares-tracker/internal/aggregate"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/export"
	"github.com/joseph-ayodele/datares-tracker/internal/extract"
	"github.com/joseph-ayodele/datares-tracker/internal/pipeline"
	"github.com/joseph-ayodele/datares-tracker/internal/progress"
	"github.com/joseph-ayodele/datares-tracker/internal/server"
	"github.com/joseph-ayodele/datares-tracker/internal/source"
	"github.com/joseph-ayodele/datares-tracker/internal/textextract"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitInterrupted = 130
)

func main() {
	// a missing .env is fine; flags and the environment still apply
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := common.Load("datares", args)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "datares: %v\n", err)
		return exitFatal
	}

	logger := common.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	runID := uuid.NewString()
	ctx = common.WithRunID(ctx, runID)
	log := common.LoggerFromContext(ctx, logger)

	path, err := source.Resolve(cfg.Source.Path, cfg.Source.Dir)
	if err != nil {
		log.Error("run.source.failed", "error", err)
		return exitFatal
	}
	table, err := source.Read(path, logger)
	if err != nil {
		log.Error("run.source.failed", "path", path, "error", err)
		return exitFatal
	}
	for _, r := range table.Rejected {
		log.Warn("run.source.rejected", "row", r.Row, "error", r.Err)
	}

	rules := extract.DefaultRules()
	if cfg.Extract.RulesFile != "" {
		if rules, err = extract.LoadRules(cfg.Extract.RulesFile); err != nil {
			log.Error("run.rules.failed", "path", cfg.Extract.RulesFile, "error", err)
			return exitFatal
		}
	}

	exporter := export.NewService(logger)
	if err := exporter.CheckWritable(cfg.Output.Dir); err != nil {
		log.Error("run.output.failed", "dir", cfg.Output.Dir, "error", err)
		return exitFatal
	}

	store, err := progress.Open(ctx, cfg.Progress, logger)
	if err != nil {
		log.Error("run.progress.failed", "error", err)
		return exitFatal
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("run.progress.close_failed", "error", err)
		}
	}()

	fetcher, err := buildFetcher(ctx, cfg.Fetch, logger)
	if err != nil {
		log.Error("run.fetch.failed", "error", err)
		return exitFatal
	}
	materializer := textextract.NewMaterializer(textextract.Config{
		Pdftotext:    cfg.Extract.Pdftotext,
		UsePdftotext: cfg.Extract.UsePdftotext,
	}, logger)
	extractor := extract.NewExtractor(materializer, extract.NewScanner(rules), logger)
	processor := pipeline.NewProcessor(logger, fetcher, extractor)

	names := export.NamesFor(source.OutputTag(path), time.Now())
	var written export.Paths
	checkpoint := func(ctx context.Context, long []entity.Fact, wide []entity.WideRow) error {
		p, err := exporter.WriteTables(ctx, cfg.Output.Dir, names, long, wide)
		if err != nil {
			return common.WrapError(err, "checkpoint "+cfg.Output.Dir)
		}
		written = p
		return nil
	}

	tracker := server.NewTracker(runID)
	srvCtx, stopServers := context.WithCancel(context.WithoutCancel(ctx))
	servers := startServers(srvCtx, cfg.Server, tracker, logger)

	sched := pipeline.NewScheduler(processor, store, aggregate.New(), logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithDocTimeout(cfg.Pipeline.DocTimeout),
		pipeline.WithCheckpoint(cfg.Pipeline.CheckpointEvery, checkpoint),
		pipeline.WithObserver(tracker.Observe),
	)

	log.Info("run.start",
		"source", path,
		"descriptors", len(table.Descriptors),
		"rejected", len(table.Rejected),
		"workers", cfg.Pipeline.Workers,
		"download", cfg.Fetch.Download,
		"progress", progressLabel(cfg.Progress.DSN),
	)
	sum, runErr := sched.Run(ctx, table.Descriptors)
	sum.Duplicates += table.Duplicates
	tracker.Finish(sum)
	stopServers()
	servers.wait()

	printSummary(stdout, sum, written)
	log.Info("run.done",
		"succeeded", sum.Succeeded,
		"retried_succeeded", sum.RetriedSucceeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"not_dispatched", sum.NotDispatched,
		"duplicates", sum.Duplicates,
		"elapsed_ms", sum.Elapsed.Milliseconds(),
	)

	switch {
	case runErr != nil:
		log.Error("run.failed", "error", runErr)
		return exitFatal
	case ctx.Err() != nil:
		log.Warn("run.interrupted", "not_dispatched", sum.NotDispatched)
		return exitInterrupted
	}
	return exitOK
}

// progressLabel hides credentials in a postgres DSN.
func progressLabel(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return dsn
}

func printSummary(w io.Writer, sum pipeline.Summary, p export.Paths) {
	fmt.Fprintf(w, "total: %d\n", sum.Total)
	fmt.Fprintf(w, "succeeded: %d (after retry: %d)\n", sum.Succeeded, sum.RetriedSucceeded)
	fmt.Fprintf(w, "failed: %d\n", sum.Failed)
	fmt.Fprintf(w, "skipped: %d\n", sum.Skipped)
	fmt.Fprintf(w, "duplicates: %d\n", sum.Duplicates)
	if sum.NotDispatched > 0 {
		fmt.Fprintf(w, "not dispatched: %d\n", sum.NotDispatched)
	}
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  failed %s %s: %s\n", f.Identity, f.URL, f.Reason)
	}
	if p.Long != "" {
		fmt.Fprintf(w, "long table: %s\n", p.Long)
		fmt.Fprintf(w, "wide table: %s\n", p.Wide)
	}
}
