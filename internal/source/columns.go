package source

import (
	"strings"
)

type column int

const (
	colCode column = iota
	colName
	colTitle
	colDate
	colURL
	colType
	numColumns
)

// Header names written by the listing tool, followed by accepted aliases.
var columnAliases = [numColumns][]string{
	colCode:  {"股票代码", "证券代码", "code", "stock_code", "seccode"},
	colName:  {"公司名称", "证券简称", "company", "company_name", "secname"},
	colTitle: {"财报名称", "报告名称", "title", "report_name", "announcementtitle"},
	colDate:  {"报告日期", "公告日期", "date", "report_date"},
	colURL:   {"PDF链接", "链接", "url", "pdf_url", "link"},
	colType:  {"报告类型", "report_type", "type"},
}

// Header is the column order the listing tool writes.
var Header = []string{"股票代码", "公司名称", "财报名称", "报告日期", "PDF链接"}

// headerIndex maps each known column to its position, -1 when absent.
func headerIndex(header []string) [numColumns]int {
	var idx [numColumns]int
	for i := range idx {
		idx[i] = -1
	}
	for pos, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for c, aliases := range columnAliases {
			if idx[c] >= 0 {
				continue
			}
			for _, a := range aliases {
				if h == strings.ToLower(a) {
					idx[c] = pos
					break
				}
			}
		}
	}
	return idx
}
