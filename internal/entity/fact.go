package entity

import (
	"github.com/joseph-ayodele/datares-tracker/constants"
)

// Fact is one long-table row: an item found in a document, with its optional
// data-resource addition.
type Fact struct {
	StockCode    string         `json:"stock_code"`
	CompanyName  string         `json:"company_name"`
	ReportName   string         `json:"report_name"`
	ReportDate   string         `json:"report_date"`
	Item         constants.Item `json:"item"`
	Amount       *Amount        `json:"amount,omitempty"`
	HasDataAsset bool           `json:"has_data_asset"`
	Addition     *Amount        `json:"addition,omitempty"`
	URL          string         `json:"url"`
}

// NewFact copies the descriptor metadata into a fact for item.
func NewFact(d Descriptor, item constants.Item) Fact {
	return Fact{
		StockCode:   d.StockCode,
		CompanyName: d.CompanyName,
		ReportName:  d.Title,
		ReportDate:  d.ReportDate,
		Item:        item,
		URL:         d.URL,
	}
}

// WideRow pivots up to three facts of one document into fixed columns.
// Amounts and Additions are indexed by constants.Item.Index; nil is an empty cell.
type WideRow struct {
	StockCode    string     `json:"stock_code"`
	CompanyName  string     `json:"company_name"`
	ReportName   string     `json:"report_name"`
	ReportDate   string     `json:"report_date"`
	Amounts      [3]*Amount `json:"amounts"`
	Additions    [3]*Amount `json:"additions"`
	HasDataAsset bool       `json:"has_data_asset"`
	URL          string     `json:"url"`
}
