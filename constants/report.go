package constants

import "strings"

// ReportType is the periodic report family requested from the listing source.
type ReportType string

const (
	ReportAnnual    ReportType = "annual"
	ReportSemi      ReportType = "semi"
	ReportQ1        ReportType = "q1"
	ReportQ3        ReportType = "q3"
	ReportUndefined ReportType = ""
)

var reportCategories = map[ReportType]string{
	ReportAnnual: "category_ndbg_szsh",
	ReportSemi:   "category_bndbg_szsh",
	ReportQ1:     "category_yjdbg_szsh",
	ReportQ3:     "category_sjdbg_szsh",
}

// ParseReportType accepts the short names plus the Chinese labels.
func ParseReportType(s string) (ReportType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "annual", "ndbg", "年报", "年度报告":
		return ReportAnnual, true
	case "semi", "bndbg", "半年报", "半年度报告":
		return ReportSemi, true
	case "q1", "yjdbg", "一季报", "第一季度报告":
		return ReportQ1, true
	case "q3", "sjdbg", "三季报", "第三季度报告":
		return ReportQ3, true
	}
	return ReportUndefined, false
}

// Category is the listing-source category code, empty for unknown types.
func (r ReportType) Category() string {
	return reportCategories[r]
}

// InferReportType guesses the report family from a title.
func InferReportType(title string) ReportType {
	switch {
	case strings.Contains(title, "半年"):
		return ReportSemi
	case strings.Contains(title, "第一季度") || strings.Contains(title, "一季度"):
		return ReportQ1
	case strings.Contains(title, "第三季度") || strings.Contains(title, "三季度"):
		return ReportQ3
	case strings.Contains(title, "年度报告") || strings.Contains(title, "年报"):
		return ReportAnnual
	}
	return ReportUndefined
}

var reportShortNames = map[ReportType]string{
	ReportAnnual: "ndbg",
	ReportSemi:   "bndbg",
	ReportQ1:     "yjdbg",
	ReportQ3:     "sjdbg",
}

// ShortName is the pinyin abbreviation used in listing file names.
func (r ReportType) ShortName() string {
	if s, ok := reportShortNames[r]; ok {
		return s
	}
	return string(r)
}
