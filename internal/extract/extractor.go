package extract

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/textextract"
)

// TextMaterializer turns document bytes into linear text.
type TextMaterializer interface {
	Materialize(ctx context.Context, body []byte) (textextract.Document, error)
}

// Result is everything the extractor learned about one document.
type Result struct {
	Facts  []entity.Fact
	Report Report
	Doc    textextract.Document
}

// Extractor runs text materialization then the section scan.
type Extractor struct {
	text    TextMaterializer
	scanner *Scanner
	logger  *slog.Logger
}

func NewExtractor(text TextMaterializer, scanner *Scanner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if scanner == nil {
		scanner = NewScanner(DefaultRules())
	}
	return &Extractor{text: text, scanner: scanner, logger: logger}
}

// Extract returns one fact per matched item. A materialization failure is an
// ExtractionError; a document without any anchor yields zero facts and no error.
func (e *Extractor) Extract(ctx context.Context, d entity.Descriptor, body []byte) (Result, error) {
	log := common.LoggerFromContext(ctx, e.logger)

	doc, err := e.text.Materialize(ctx, body)
	if err != nil {
		log.Warn("extract.text.failed", "bytes", len(body), "kind", string(doc.Kind), "error", err)
		return Result{Doc: doc}, common.ExtractionError("materialize text", err)
	}
	for _, w := range doc.Warnings {
		log.Debug("extract.text.warning", "warning", w)
	}

	rep := e.scanner.Scan(doc.Text)
	facts := FactsFromReport(d, rep)

	if n := rep.DuplicateCount(); n > 0 {
		attrs := []any{"discarded", n, "nested", rep.NestedDuplicates, "policy", string(e.scanner.rules.DuplicatePolicy)}
		for it, c := range rep.Duplicates {
			attrs = append(attrs, string(it), c)
		}
		log.Info("extract.duplicates", attrs...)
	}
	log.Debug("extract.ok", "method", doc.Method, "pages", doc.Pages, "facts", len(facts))
	return Result{Facts: facts, Report: rep, Doc: doc}, nil
}

// FactsFromReport maps Matched entries to long-table facts for d.
func FactsFromReport(d entity.Descriptor, rep Report) []entity.Fact {
	found := rep.Found()
	facts := make([]entity.Fact, 0, len(found))
	for _, m := range found {
		f := entity.NewFact(d, m.Item)
		f.Amount = m.Amount
		// a nested row holding only a dash placeholder does not count as a disclosure
		f.HasDataAsset = m.HasDataResource && m.Addition != nil
		f.Addition = m.Addition
		facts = append(facts, f)
	}
	return facts
}
