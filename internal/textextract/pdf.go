package textextract

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfRows rebuilds each page as one line per text row, top to bottom. Glyph
// runs further apart than half a font size are separated by a space so table
// cells stay distinct fields.
func pdfRows(body []byte, maxPages int) (text string, pages int, warnings []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", 0, nil, fmt.Errorf("open pdf: %w", err)
	}

	total := r.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}

	var b strings.Builder
	for i := 1; i <= total; i++ {
		lines, perr := pageLines(r, i)
		if perr != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i, perr))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.Join(lines, "\n"))
		pages++
	}
	return b.String(), pages, warnings, nil
}

func pageLines(r *pdf.Reader, n int) (lines []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	page := r.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("invalid page")
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })

	for _, row := range rows {
		words := row.Content
		sort.SliceStable(words, func(i, j int) bool { return words[i].X < words[j].X })

		var line strings.Builder
		var prevEnd float64
		for k, w := range words {
			if k > 0 {
				gap := w.X - prevEnd
				if gap > w.FontSize*0.5 && !strings.HasSuffix(line.String(), " ") {
					line.WriteByte(' ')
				}
			}
			line.WriteString(w.S)
			prevEnd = w.X + w.W
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
	}
	return lines, nil
}

// pdfToText shells out to poppler's pdftotext for PDFs the built-in reader
// cannot decode (CID fonts without a ToUnicode map, broken xref tables).
func (m *Materializer) pdfToText(ctx context.Context, body []byte) (text string, pages int, warnings []string, err error) {
	// read the PDF from stdin, write UTF-8 text to stdout
	out, err := m.runner.Run(ctx, Command{
		Name:  m.cfg.Pdftotext,
		Args:  []string{"-layout", "-enc", "UTF-8", "-eol", "unix", "-", "-"},
		Stdin: body,
	})
	if err != nil {
		return "", 0, nil, err
	}
	text = string(out)
	// form feed separates pages
	pages = 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	return text, pages, nil, nil
}
