package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

const (
	LongSheet = "长格式"
	WideSheet = "宽格式"
)

// LongHeaders are the long table columns in order.
var LongHeaders = []string{
	"证券代码", "公司名称", "报告名称", "报告日期", "项目名称", "金额", "是否包含数据资产", "新增数据资源", "PDF链接",
}

// WideHeaders are the wide table columns in order.
var WideHeaders = func() []string {
	h := []string{"证券代码", "公司名称", "报告名称", "报告日期"}
	h = append(h, constants.ItemsAsStringSlice()...)
	for _, it := range constants.AllItems() {
		h = append(h, string(it)+"_新增"+constants.DataResourceAnchor)
	}
	return append(h, "是否包含数据资产", "PDF链接")
}()

// Service renders the result tables as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Paths are the files written by WriteTables.
type Paths struct {
	Long string
	Wide string
}

// CheckWritable creates dir if needed and proves a file can be written there.
func (s *Service) CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return common.FatalConfigError("output dir "+dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return common.FatalConfigError("output dir "+dir+" is not writable", err)
	}
	_ = tmp.Close()
	if err := os.Remove(tmp.Name()); err != nil {
		s.logger.Warn("export.check.cleanup_failed", "path", tmp.Name(), "error", err)
	}
	return nil
}

// WriteTables writes both tables into dir. Each file is replaced atomically.
func (s *Service) WriteTables(ctx context.Context, dir string, names Names, long []entity.Fact, wide []entity.WideRow) (Paths, error) {
	if err := ctx.Err(); err != nil {
		return Paths{}, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create output dir: %w", err)
	}

	longBytes, err := s.LongXLSX(long)
	if err != nil {
		return Paths{}, err
	}
	wideBytes, err := s.WideXLSX(wide)
	if err != nil {
		return Paths{}, err
	}

	p := Paths{Long: filepath.Join(dir, names.Long), Wide: filepath.Join(dir, names.Wide)}
	if err := writeAtomic(p.Long, longBytes); err != nil {
		return Paths{}, err
	}
	if err := writeAtomic(p.Wide, wideBytes); err != nil {
		return Paths{}, err
	}
	return p, nil
}

// LongXLSX returns a workbook with one row per fact.
func (s *Service) LongXLSX(facts []entity.Fact) ([]byte, error) {
	start := time.Now()
	f, err := newWorkbook(LongSheet, LongHeaders)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	for i, fact := range facts {
		row := i + 2
		write := cellWriter(f, LongSheet, row)
		write(1, fact.StockCode)
		write(2, fact.CompanyName)
		write(3, fact.ReportName)
		write(4, fact.ReportDate)
		write(5, string(fact.Item))
		write(6, amountCell(fact.Amount))
		write(7, flagCell(fact.HasDataAsset))
		write(8, amountCell(fact.Addition))
		write(9, fact.URL)
	}

	_ = f.SetColWidth(LongSheet, "A", "A", 12)
	_ = f.SetColWidth(LongSheet, "B", "C", 28)
	_ = f.SetColWidth(LongSheet, "D", "E", 12)
	_ = f.SetColWidth(LongSheet, "F", "H", 18)
	_ = f.SetColWidth(LongSheet, "I", "I", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok", "table", "long", "rows", len(facts), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// WideXLSX returns a workbook with one row per document and a frozen header.
func (s *Service) WideXLSX(rows []entity.WideRow) ([]byte, error) {
	start := time.Now()
	f, err := newWorkbook(WideSheet, WideHeaders)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	n := len(constants.AllItems())
	for i, r := range rows {
		write := cellWriter(f, WideSheet, i+2)
		write(1, r.StockCode)
		write(2, r.CompanyName)
		write(3, r.ReportName)
		write(4, r.ReportDate)
		for k := 0; k < n; k++ {
			write(5+k, amountCell(r.Amounts[k]))
			write(5+n+k, amountCell(r.Additions[k]))
		}
		write(5+2*n, flagCell(r.HasDataAsset))
		write(6+2*n, r.URL)
	}

	if err := f.SetPanes(WideSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}
	_ = f.SetColWidth(WideSheet, "A", "A", 12)
	_ = f.SetColWidth(WideSheet, "B", "C", 28)
	_ = f.SetColWidth(WideSheet, "D", "D", 12)
	_ = f.SetColWidth(WideSheet, "E", "J", 18)
	_ = f.SetColWidth(WideSheet, "L", "L", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok", "table", "wide", "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func newWorkbook(sheet string, headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	return f, nil
}

func cellWriter(f *excelize.File, sheet string, row int) func(col int, v any) {
	return func(col int, v any) {
		if v == nil {
			return
		}
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// amountCell leaves the cell empty for a missing amount.
func amountCell(a *entity.Amount) any {
	if a == nil {
		return nil
	}
	return a.Float64()
}

func flagCell(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
