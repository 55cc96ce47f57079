package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

// Rejection is a row that could not become a descriptor.
type Rejection struct {
	Row int // 1-based, header is row 1
	Err error
}

// Table is the parsed descriptor source.
type Table struct {
	Path        string
	Descriptors []entity.Descriptor
	Rejected    []Rejection
	Duplicates  int
}

// Read loads descriptors from a CSV or XLSX file. Structural problems
// (unreadable file, missing URL column) are fatal configuration errors; bad
// rows are rejected individually.
func Read(path string, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ext := constants.NormalizeExt(filepath.Ext(path))
	if _, ok := constants.DescriptorExtensions[ext]; !ok {
		return nil, common.FatalConfigErrorf("unsupported descriptor file %q (want .csv or .xlsx)", path)
	}

	var (
		rows [][]string
		err  error
	)
	switch ext {
	case "csv":
		rows, err = readCSV(path)
	case "xlsx":
		rows, err = readXLSX(path)
	}
	if err != nil {
		return nil, common.FatalConfigError("read descriptor file "+path, err)
	}
	if len(rows) == 0 {
		return nil, common.FatalConfigErrorf("descriptor file %q is empty", path)
	}

	t, err := parseRows(rows)
	if err != nil {
		return nil, common.FatalConfigError("descriptor file "+path, err)
	}
	t.Path = path
	for _, r := range t.Rejected {
		logger.Warn("source.row.rejected", "path", path, "row", r.Row, "error", r.Err)
	}
	logger.Info("source.read",
		"path", path,
		"descriptors", len(t.Descriptors),
		"rejected", len(t.Rejected),
		"duplicates", t.Duplicates,
	)
	return t, nil
}

func readCSV(path string) ([][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(raw) {
		decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode GB18030: %w", err)
		}
		raw = decoded
	}
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func parseRows(rows [][]string) (*Table, error) {
	idx := headerIndex(rows[0])
	if idx[colURL] < 0 {
		return nil, fmt.Errorf("missing required column %q (have %s)", Header[4], strings.Join(rows[0], ","))
	}

	t := &Table{}
	seen := make(map[string]struct{}, len(rows))
	for i, rec := range rows[1:] {
		rowNum := i + 2
		if blank(rec) {
			continue
		}
		d, err := descriptorFromRecord(rec, idx)
		if err != nil {
			t.Rejected = append(t.Rejected, Rejection{Row: rowNum, Err: err})
			continue
		}
		id := d.Identity()
		if _, dup := seen[id]; dup {
			t.Duplicates++
			continue
		}
		seen[id] = struct{}{}
		t.Descriptors = append(t.Descriptors, d)
	}
	return t, nil
}

func descriptorFromRecord(rec []string, idx [numColumns]int) (entity.Descriptor, error) {
	get := func(c column) string {
		if idx[c] < 0 || idx[c] >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx[c]])
	}

	d := entity.Descriptor{
		StockCode:   entity.NormalizeStockCode(get(colCode)),
		CompanyName: get(colName),
		Title:       get(colTitle),
		ReportDate:  NormalizeDate(get(colDate)),
		URL:         get(colURL),
	}
	if rt, ok := constants.ParseReportType(get(colType)); ok {
		d.ReportType = rt
	} else {
		d.ReportType = constants.InferReportType(d.Title)
	}

	v := common.NewValidator().
		Field("url", d.URL, common.Required, common.HTTPURL).
		Field("stock_code", d.StockCode, common.StockCode)
	if d.ReportDate != "" {
		v.Field("report_date", d.ReportDate, common.ISODate)
	}
	if d.StockCode != "" && d.ReportDate == "" {
		v.Field("report_date", d.ReportDate, common.Required)
	}
	if err := v.Error(); err != nil {
		return entity.Descriptor{}, err
	}
	return d, nil
}

var dateLayouts = []string{
	time.DateOnly,
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"20060102",
	time.DateTime,
	"2006/01/02 15:04:05",
	"01-02-06", // excelize default date rendering
}

// NormalizeDate renders any accepted date spelling as YYYY-MM-DD; unparseable
// input is returned trimmed so validation can report it.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return s
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
