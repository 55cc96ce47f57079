package extract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/datares-tracker/constants"
)

// DuplicatePolicy decides what happens to a second nested anchor inside one item window.
type DuplicatePolicy string

const (
	DuplicateFirst DuplicatePolicy = "first" // keep the first addition, count the rest
	DuplicateSum   DuplicatePolicy = "sum"   // add every addition found in the window
)

// ItemRule lists the phrases that open an item's section.
type ItemRule struct {
	Item    constants.Item `yaml:"item"`
	Anchors []string       `yaml:"anchors"`
}

// Rules configures the section scanner.
type Rules struct {
	Items           []ItemRule      `yaml:"items"`
	NestedAnchors   []string        `yaml:"nested_anchors"`
	Window          int             `yaml:"window"`
	DuplicatePolicy DuplicatePolicy `yaml:"duplicate_policy"`
	// StrictBoundary rejects an item anchor directly followed by another Han
	// character, so 存货跌价准备 does not open the 存货 section.
	StrictBoundary bool `yaml:"strict_boundary"`
}

func DefaultRules() Rules {
	items := make([]ItemRule, 0, 3)
	for _, it := range constants.AllItems() {
		items = append(items, ItemRule{Item: it, Anchors: []string{string(it)}})
	}
	return Rules{
		Items:           items,
		NestedAnchors:   []string{constants.DataResourceAnchor},
		Window:          8,
		DuplicatePolicy: DuplicateFirst,
		StrictBoundary:  true,
	}
}

// LoadRules reads a YAML rules file; keys it omits keep their defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("rules %s: %w", path, err)
	}
	return rules, nil
}

func (r *Rules) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("at least one item rule is required")
	}
	for i, ir := range r.Items {
		it, ok := constants.CanonicalizeItem(string(ir.Item))
		if !ok {
			return fmt.Errorf("items[%d]: unknown item %q", i, ir.Item)
		}
		r.Items[i].Item = it
		if len(ir.Anchors) == 0 {
			r.Items[i].Anchors = []string{string(it)}
		}
	}
	if len(r.NestedAnchors) == 0 {
		return fmt.Errorf("at least one nested anchor is required")
	}
	if r.Window < 1 {
		return fmt.Errorf("window must be at least 1, got %d", r.Window)
	}
	switch r.DuplicatePolicy {
	case DuplicateFirst, DuplicateSum:
	case "":
		r.DuplicatePolicy = DuplicateFirst
	default:
		return fmt.Errorf("duplicate_policy must be %q or %q, got %q", DuplicateFirst, DuplicateSum, r.DuplicatePolicy)
	}
	return nil
}
