package listing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/source"
)

const utf8BOM = "\ufeff"

// WriteCSV writes ds as a listing table the descriptor reader understands.
// The file starts with a UTF-8 BOM so spreadsheet tools detect the encoding.
func WriteCSV(path string, ds []entity.Descriptor) error {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(source.Header); err != nil {
		return err
	}
	for _, d := range ds {
		if err := w.Write([]string{d.StockCode, d.CompanyName, d.Title, d.ReportDate, d.URL}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".listing-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
