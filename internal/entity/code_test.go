package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStockCode(t *testing.T) {
	tests := map[string]string{
		"1":         "000001.SZ",
		"600000":    "600000.SH",
		"688981":    "688981.SH",
		"300750":    "300750.SZ",
		"830799":    "830799.BJ",
		"430047":    "430047.BJ",
		"920002":    "920002.BJ",
		"900901":    "900901",
		" 2.sz ":    "000002.SZ",
		"600000.SH": "600000.SH",
		"":          "",
		"未知代码":      "未知代码",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeStockCode(in), in)
	}
}

func TestDescriptorIdentity(t *testing.T) {
	d := Descriptor{StockCode: "000001.SZ", ReportDate: "2025-03-15", URL: "https://example.test/a.pdf"}
	assert.Equal(t, "000001.SZ|2025-03-15|-", d.Identity())

	d.ReportType = "annual"
	assert.Equal(t, "000001.SZ|2025-03-15|annual", d.Identity())

	d.StockCode = ""
	assert.Equal(t, "url:https://example.test/a.pdf", d.Identity())
}

func TestDescriptorLess(t *testing.T) {
	a := Descriptor{StockCode: "600000.SH", ReportDate: "2025-03-01"}
	b := Descriptor{StockCode: "000001.SZ", ReportDate: "2025-03-02"}
	c := Descriptor{StockCode: "000002.SZ", ReportDate: "2025-03-02"}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "1234567.89", Amount{Fen: 123456789}.String())
	assert.Equal(t, "-500.00", Amount{Fen: -50000}.String())
	assert.Equal(t, "-0.05", Amount{Fen: -5}.String())
	assert.Equal(t, Amount{Fen: 123000 * 100}, AmountFromFloat(123000))
	assert.InDelta(t, 1234567.89, Amount{Fen: 123456789}.Float64(), 1e-9)

	back, err := ParseAmountString("-500.00")
	assert.NoError(t, err)
	assert.Equal(t, Amount{Fen: -50000}, back)
}
