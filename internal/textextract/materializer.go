package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/joseph-ayodele/datares-tracker/constants"
)

type Config struct {
	Pdftotext    string // binary name or absolute path; if empty -> "pdftotext"
	UsePdftotext bool   // fall back to pdftotext when the built-in reader yields no text
	MaxPages     int    // 0 = no limit
	MinChars     int    // below this many non-space runes the text counts as empty, default 16
}

// Document is the linear text of one fetched body.
type Document struct {
	Text     string
	Kind     constants.DocKind
	Pages    int
	Method   string // "pdf-rows" | "pdftotext" | "html" | "text"
	Duration time.Duration
	Warnings []string
}

type Materializer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewMaterializer(cfg Config, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 16
	}
	return &Materializer{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner (tests).
func (m *Materializer) WithRunner(r Runner) *Materializer {
	m.runner = r
	return m
}

// Materialize converts a document body to normalized text, picking a strategy
// from the sniffed content.
func (m *Materializer) Materialize(ctx context.Context, body []byte) (Document, error) {
	start := time.Now()
	kind := constants.SniffKind(body)
	m.logger.Debug("textextract.start", "kind", string(kind), "bytes", len(body))

	var (
		doc Document
		err error
	)
	switch kind {
	case constants.PDF:
		doc, err = m.fromPDF(ctx, body)
	case constants.HTML:
		var text string
		text, err = htmlLines(body)
		doc = Document{Text: text, Pages: 1, Method: "html"}
	case constants.TXT:
		doc = Document{Text: string(body), Pages: 1, Method: "text"}
	default:
		if text, ok := decodeGB18030(body); ok {
			doc = Document{Text: text, Pages: 1, Method: "text"}
			kind = constants.TXT
			break
		}
		err = fmt.Errorf("unsupported document content")
	}
	doc.Kind = kind
	doc.Duration = time.Since(start)
	if err != nil {
		return doc, err
	}

	doc.Text = Normalize(doc.Text)
	if !m.hasText(doc.Text) {
		return doc, fmt.Errorf("no text extracted (%s, %d pages)", doc.Method, doc.Pages)
	}
	m.logger.Debug("textextract.ok",
		"method", doc.Method,
		"pages", doc.Pages,
		"chars", utf8.RuneCountInString(doc.Text),
		"elapsed_ms", doc.Duration.Milliseconds(),
	)
	return doc, nil
}

func (m *Materializer) fromPDF(ctx context.Context, body []byte) (Document, error) {
	text, pages, warns, err := pdfRows(body, m.cfg.MaxPages)
	doc := Document{Text: text, Pages: pages, Method: "pdf-rows", Warnings: warns}
	if err == nil && m.hasText(Normalize(text)) {
		return doc, nil
	}
	if !m.cfg.UsePdftotext {
		if err != nil {
			return doc, err
		}
		return doc, nil
	}

	m.logger.Info("textextract.pdf.fallback", "reason", fallbackReason(err), "warnings", len(warns))
	text, pages, warns2, ferr := m.pdfToText(ctx, body)
	if ferr != nil {
		if err != nil {
			return doc, fmt.Errorf("pdf reader: %v; pdftotext: %w", err, ferr)
		}
		return doc, fmt.Errorf("pdftotext: %w", ferr)
	}
	return Document{Text: text, Pages: pages, Method: "pdftotext", Warnings: append(warns, warns2...)}, nil
}

func (m *Materializer) hasText(s string) bool {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\n' {
			n++
			if n >= m.cfg.MinChars {
				return true
			}
		}
	}
	return false
}

func fallbackReason(err error) string {
	if err != nil {
		return err.Error()
	}
	return "empty text layer"
}

// decodeGB18030 accepts legacy-encoded plain text disclosures.
func decodeGB18030(body []byte) (string, bool) {
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(body)
	if err != nil || !utf8.Valid(out) || strings.ContainsRune(string(out), utf8.RuneError) {
		return "", false
	}
	for _, r := range string(out) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return "", false
		}
	}
	return string(out), true
}
