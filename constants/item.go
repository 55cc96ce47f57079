package constants

import (
	"strings"
)

// Item is one of the balance-sheet notes that may carry a data-resource disclosure.
type Item string

const (
	Inventory       Item = "存货"
	IntangibleAsset Item = "无形资产"
	DevExpenditure  Item = "开发支出"
)

// DataResourceAnchor marks the nested "data resource" sub-disclosure.
const DataResourceAnchor = "数据资源"

var allItems = []Item{
	Inventory,
	IntangibleAsset,
	DevExpenditure,
}

// AllItems returns the target items in output column order.
func AllItems() []Item {
	out := make([]Item, len(allItems))
	copy(out, allItems)
	return out
}

func ItemsAsStringSlice() []string {
	result := make([]string, len(allItems))
	for i, it := range allItems {
		result[i] = string(it)
	}
	return result
}

// CanonicalizeItem accepts the Chinese label or an English alias.
func CanonicalizeItem(input string) (Item, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]Item{
		"inventory":               Inventory,
		"inventories":             Inventory,
		"intangible":              IntangibleAsset,
		"intangible assets":       IntangibleAsset,
		"intangible_assets":       IntangibleAsset,
		"development expenditure": DevExpenditure,
		"development_expenditure": DevExpenditure,
		"dev":                     DevExpenditure,
	}
	if it, ok := synonyms[normalized]; ok {
		return it, true
	}

	for _, it := range allItems {
		if normalized == string(it) {
			return it, true
		}
	}
	return "", false
}

// Index is the item's position in AllItems, or -1.
func (i Item) Index() int {
	for n, it := range allItems {
		if it == i {
			return n
		}
	}
	return -1
}
