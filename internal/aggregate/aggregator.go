package aggregate

import (
	"sort"
	"sync"

	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

type document struct {
	desc  entity.Descriptor
	facts []entity.Fact
}

// Aggregator folds per-document facts into the long and wide tables.
// Adding the same identity again replaces its earlier contribution.
type Aggregator struct {
	mu   sync.RWMutex
	docs map[string]document
	adds int
}

func New() *Aggregator {
	return &Aggregator{docs: make(map[string]document)}
}

// Add records the facts of d, overwriting any earlier result for the same identity.
// A document with no facts has no long rows and an empty wide row.
func (a *Aggregator) Add(d entity.Descriptor, facts []entity.Fact) {
	a.AddIdentity(d.Identity(), d, facts)
}

// AddIdentity is Add with an explicit key, used when replaying stored results.
func (a *Aggregator) AddIdentity(identity string, d entity.Descriptor, facts []entity.Fact) {
	cp := append([]entity.Fact(nil), facts...)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adds++
	a.docs[identity] = document{desc: d, facts: cp}
}

// Documents is the number of documents recorded, with or without facts.
func (a *Aggregator) Documents() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.docs)
}

// Adds counts Add calls, including overwrites.
func (a *Aggregator) Adds() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.adds
}

// Long returns every fact ordered by report date, security code, identity, then item.
func (a *Aggregator) Long() []entity.Fact {
	docs := a.sorted()
	var out []entity.Fact
	for _, d := range docs {
		facts := append([]entity.Fact(nil), d.facts...)
		sort.SliceStable(facts, func(i, j int) bool { return facts[i].Item.Index() < facts[j].Item.Index() })
		out = append(out, facts...)
	}
	return out
}

// Wide returns one pivoted row per document, ordered like Long. Documents
// without facts keep a row whose item cells are empty.
func (a *Aggregator) Wide() []entity.WideRow {
	docs := a.sorted()
	out := make([]entity.WideRow, 0, len(docs))
	for _, d := range docs {
		out = append(out, Pivot(d.desc, d.facts))
	}
	return out
}

func (a *Aggregator) sorted() []document {
	a.mu.RLock()
	type keyed struct {
		id string
		document
	}
	docs := make([]keyed, 0, len(a.docs))
	for id, d := range a.docs {
		docs = append(docs, keyed{id: id, document: d})
	}
	a.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		di, dj := docs[i].desc, docs[j].desc
		if di.ReportDate != dj.ReportDate {
			return di.ReportDate < dj.ReportDate
		}
		if di.StockCode != dj.StockCode {
			return di.StockCode < dj.StockCode
		}
		return docs[i].id < docs[j].id
	})
	out := make([]document, len(docs))
	for i := range docs {
		out[i] = docs[i].document
	}
	return out
}

// Pivot folds the facts of one document into a wide row. Items without a fact
// stay nil; the flag is the OR of the facts' flags.
func Pivot(d entity.Descriptor, facts []entity.Fact) entity.WideRow {
	row := entity.WideRow{
		StockCode:   d.StockCode,
		CompanyName: d.CompanyName,
		ReportName:  d.Title,
		ReportDate:  d.ReportDate,
		URL:         d.URL,
	}
	if row.StockCode == "" && row.URL == "" && len(facts) > 0 {
		f := facts[0]
		row.StockCode, row.CompanyName, row.ReportName, row.ReportDate, row.URL =
			f.StockCode, f.CompanyName, f.ReportName, f.ReportDate, f.URL
	}
	for _, f := range facts {
		i := f.Item.Index()
		if i < 0 || i >= len(row.Amounts) {
			continue
		}
		if row.Amounts[i] == nil && f.Amount != nil {
			v := *f.Amount
			row.Amounts[i] = &v
		}
		if row.Additions[i] == nil && f.Addition != nil {
			v := *f.Addition
			row.Additions[i] = &v
		}
		row.HasDataAsset = row.HasDataAsset || f.HasDataAsset
	}
	return row
}
