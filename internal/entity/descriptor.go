package entity

import (
	"strings"

	"github.com/joseph-ayodele/datares-tracker/constants"
)

// Descriptor identifies one disclosure document to fetch and process.
type Descriptor struct {
	StockCode   string               `json:"stock_code"`
	CompanyName string               `json:"company_name"`
	Title       string               `json:"title"`
	ReportDate  string               `json:"report_date"` // YYYY-MM-DD
	URL         string               `json:"url"`
	ReportType  constants.ReportType `json:"report_type,omitempty"`
}

// Identity is the stable key used by the progress store, the cache and the aggregator.
// Stock code + report date + report type; the URL stands in when the code is missing.
func (d Descriptor) Identity() string {
	code := strings.TrimSpace(d.StockCode)
	if code == "" {
		return "url:" + strings.TrimSpace(d.URL)
	}
	rt := string(d.ReportType)
	if rt == "" {
		rt = "-"
	}
	return code + "|" + strings.TrimSpace(d.ReportDate) + "|" + rt
}

// Less orders descriptors by report date, then security code, then identity.
func (d Descriptor) Less(o Descriptor) bool {
	if d.ReportDate != o.ReportDate {
		return d.ReportDate < o.ReportDate
	}
	if d.StockCode != o.StockCode {
		return d.StockCode < o.StockCode
	}
	return d.Identity() < o.Identity()
}
