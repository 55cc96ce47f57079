package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

func TestWindows(t *testing.T) {
	start, end := day("2025-03-01"), day("2025-03-10")

	days := Windows(start, end, "day")
	assert.Len(t, days, 10)
	assert.Equal(t, "2025-03-01~2025-03-01", days[0].SeDate())

	weeks := Windows(start, end, "week")
	assert.Len(t, weeks, 2)
	assert.Equal(t, "2025-03-01~2025-03-07", weeks[0].SeDate())
	assert.Equal(t, "2025-03-08~2025-03-10", weeks[1].SeDate())

	all := Windows(start, end, "all")
	assert.Equal(t, []Window{{From: start, To: end}}, all)

	assert.Nil(t, Windows(end, start, "day"))
}

func TestTargetYears(t *testing.T) {
	tests := []struct {
		start, end string
		want       []int
	}{
		{"2025-04-01", "2026-03-31", []int{2025}},
		{"2025-07-01", "2025-09-30", []int{2025}},
		{"2025-01-15", "2025-02-10", []int{2024}},
		{"2024-12-01", "2025-06-30", []int{2024, 2025}},
	}
	for _, tt := range tests {
		t.Run(tt.start+"~"+tt.end, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetYears(day(tt.start), day(tt.end)))
		})
	}
}

func TestFilterReason(t *testing.T) {
	f := Filter{Years: []int{2024}}
	tests := []struct {
		title string
		want  string
	}{
		{"2024年年度报告", ""},
		{"2024年年度报告摘要", "summary"},
		{"2024年年度报告（英文版）", "english"},
		{"2023年年度报告", "year"},
		{"年度报告", ""},
		{"2024年年度报告（更正后）", ""},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Reason(tt.title))
		})
	}

	assert.Equal(t, "", Filter{}.Reason("2019年年度报告"))
}

func TestToDescriptor(t *testing.T) {
	a := Announcement{
		SecCode:           "1",
		SecName:           " 平安银行 ",
		AnnouncementTitle: "<em>2024年年度报告</em>",
		AnnouncementTime:  float64(1743177600000),
		AdjunctURL:        "finalpage/2025-03-29/1222.PDF",
	}
	d := ToDescriptor(a, "https://static.cninfo.com.cn/", constants.ReportUndefined)
	assert.Equal(t, entity.Descriptor{
		StockCode:   "000001.SZ",
		CompanyName: "平安银行",
		Title:       "2024年年度报告",
		ReportDate:  "2025-03-29",
		URL:         "https://static.cninfo.com.cn/finalpage/2025-03-29/1222.PDF",
		ReportType:  constants.ReportAnnual,
	}, d)

	a.AnnouncementTime = "2025-04-30 00:00:00"
	a.SecCode = "830799"
	d = ToDescriptor(a, "https://static.cninfo.com.cn", constants.ReportAnnual)
	assert.Equal(t, "2025-04-30", d.ReportDate)
	assert.Equal(t, "830799.BJ", d.StockCode)
}

func TestKeepNewest(t *testing.T) {
	in := []entity.Descriptor{
		{StockCode: "600000.SH", CompanyName: "浦发银行", Title: "2024年年度报告", ReportDate: "2025-03-29", URL: "u1"},
		{StockCode: "000001.SZ", CompanyName: "平安银行", Title: "2024年年度报告", ReportDate: "2025-03-15", URL: "u2"},
		{StockCode: "600000.SH", CompanyName: "浦发银行", Title: "2024年年度报告（更正后）", ReportDate: "2025-04-10", URL: "u3"},
		{StockCode: "600000.SH", CompanyName: "浦发银行", Title: "2024年年度报告", ReportDate: "2025-05-01", URL: "u4"},
		{CompanyName: "未知", Title: "年度报告", ReportDate: "2025-03-01", URL: "u5"},
	}
	out := KeepNewest(in)
	assert.Len(t, out, 3)
	assert.Equal(t, "000001.SZ", out[0].StockCode)
	assert.Equal(t, "u3", out[1].URL, "the repeated title is dropped before picking the newest")
	assert.Equal(t, "u5", out[2].URL)
}
