package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/extract"
	"github.com/joseph-ayodele/datares-tracker/internal/fetch"
)

// DocumentExtractor turns fetched bytes into facts.
type DocumentExtractor interface {
	Extract(ctx context.Context, d entity.Descriptor, body []byte) (extract.Result, error)
}

// Worker processes one descriptor end to end. Implementations never panic on
// bad input; every failure is reported through Outcome.Err.
type Worker interface {
	Process(ctx context.Context, d entity.Descriptor) Outcome
}

// Outcome is what a worker hands back to the collector.
type Outcome struct {
	Descriptor entity.Descriptor
	Facts      []entity.Fact
	Attempts   int
	FromCache  bool
	Discarded  int // duplicate anchors dropped by the scanner
	Err        error
	Elapsed    time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

// Processor coordinates fetch then extraction.
type Processor struct {
	logger    *slog.Logger
	fetcher   fetch.Fetcher
	extractor DocumentExtractor
}

func NewProcessor(logger *slog.Logger, f fetch.Fetcher, x DocumentExtractor) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger, fetcher: f, extractor: x}
}

// Process fetches d (with whatever retry and caching the fetcher carries) and
// extracts its facts.
func (p *Processor) Process(ctx context.Context, d entity.Descriptor) Outcome {
	start := time.Now()
	log := common.LoggerFromContext(ctx, p.logger)
	out := Outcome{Descriptor: d}

	res := p.fetcher.Fetch(ctx, d)
	out.Attempts = res.Attempts
	if out.Attempts == 0 {
		out.Attempts = 1
	}
	out.FromCache = res.FromCache
	if !res.OK() {
		out.Err = res.Err
		out.Elapsed = time.Since(start)
		log.Warn("processor.fetch.failed", "kind", res.Kind.String(), "status", res.Status, "attempts", out.Attempts, "error", res.Err)
		return out
	}
	log.Debug("processor.fetch.ok", "bytes", len(res.Body), "attempts", out.Attempts, "from_cache", res.FromCache)

	xr, err := p.extractor.Extract(ctx, d, res.Body)
	out.Elapsed = time.Since(start)
	if err != nil {
		out.Err = err
		log.Warn("processor.extract.failed", "error", err)
		return out
	}
	out.Facts = xr.Facts
	out.Discarded = xr.Report.DuplicateCount()
	log.Debug("processor.extract.ok", "facts", len(xr.Facts), "method", xr.Doc.Method, "elapsed_ms", out.Elapsed.Milliseconds())
	return out
}

var _ Worker = (*Processor)(nil)
