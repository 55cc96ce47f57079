package extract

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

// Match is the per-item scan outcome: Matched or NotFound.
type Match interface {
	ItemName() constants.Item
	isMatch()
}

// Matched is an item section found in the text.
type Matched struct {
	Item constants.Item
	// Amount is the nearest amount after the item anchor; nil when the row
	// carries a placeholder or no amount before the window closes.
	Amount *entity.Amount
	// HasDataResource is true when a nested anchor was seen inside the window.
	HasDataResource bool
	// Addition is the amount after the nested anchor, nil when absent.
	Addition *entity.Amount
	Line     int    // 1-based line of the item anchor
	Window   string // raw text from the anchor line to the end of the window
}

// NotFound reports an item with no anchor in the text.
type NotFound struct {
	Item constants.Item
}

func (m Matched) ItemName() constants.Item { return m.Item }
func (Matched) isMatch()                   {}

func (n NotFound) ItemName() constants.Item { return n.Item }
func (NotFound) isMatch()                   {}

// Report is the result of scanning one document.
type Report struct {
	Matches []Match // one per rule item, in rule order
	// Duplicates counts later anchors of an item already matched.
	Duplicates map[constants.Item]int
	// NestedDuplicates counts extra nested anchors inside a matched window.
	NestedDuplicates int
}

// Found returns the Matched entries in rule order.
func (r Report) Found() []Matched {
	var out []Matched
	for _, m := range r.Matches {
		if mm, ok := m.(Matched); ok {
			out = append(out, mm)
		}
	}
	return out
}

// DuplicateCount sums discarded item and nested anchors.
func (r Report) DuplicateCount() int {
	n := r.NestedDuplicates
	for _, c := range r.Duplicates {
		n += c
	}
	return n
}

// leading list markers such as "1、", "（二）", "3." or "七、"
var reEnumerator = regexp.MustCompile(`^(?:[(（]?[0-9一二三四五六七八九十]{1,3}[)）、.．]\s*)+`)

// Scanner walks text line by line looking for item sections.
type Scanner struct {
	rules Rules
}

func NewScanner(rules Rules) *Scanner {
	return &Scanner{rules: rules}
}

func (s *Scanner) Rules() Rules {
	return s.rules
}

// Scan finds, for every item rule, the first anchor line in document order
// and reads its amount and nested data-resource addition.
func (s *Scanner) Scan(text string) Report {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	found := make(map[constants.Item]Matched, len(s.rules.Items))
	rep := Report{Duplicates: map[constants.Item]int{}}

	for i := 0; i < len(lines); i++ {
		item, rest, ok := s.matchItem(lines[i])
		if !ok {
			continue
		}
		if _, seen := found[item]; seen {
			rep.Duplicates[item]++
			continue
		}
		m, nestedDup := s.readSection(lines, i, item, rest)
		rep.NestedDuplicates += nestedDup
		found[item] = m
	}

	for _, ir := range s.rules.Items {
		if m, ok := found[ir.Item]; ok {
			rep.Matches = append(rep.Matches, m)
		} else {
			rep.Matches = append(rep.Matches, NotFound{Item: ir.Item})
		}
	}
	for it, n := range rep.Duplicates {
		if n == 0 {
			delete(rep.Duplicates, it)
		}
	}
	return rep
}

func (s *Scanner) readSection(lines []string, start int, item constants.Item, rest string) (Matched, int) {
	end := min(len(lines), start+1+s.rules.Window)
	m := Matched{Item: item, Line: start + 1}

	amount, settled := firstAmount(rest)
	m.Amount = amount

	nestedDup := 0
	last := start
	for j := start + 1; j < end; j++ {
		line := lines[j]
		if _, _, isItem := s.matchItem(line); isItem {
			break
		}
		last = j
		if nrest, ok := s.matchNested(line); ok {
			add, _ := s.amountAfter(lines, j, end, nrest)
			if m.HasDataResource {
				nestedDup++
				if s.rules.DuplicatePolicy == DuplicateSum && add != nil {
					if m.Addition == nil {
						m.Addition = add
					} else {
						sum := m.Addition.Add(*add)
						m.Addition = &sum
					}
				}
				continue
			}
			m.HasDataResource = true
			m.Addition = add
			continue
		}
		if !settled && !m.HasDataResource {
			if a, ok := firstAmount(line); ok {
				m.Amount = a
				settled = true
			}
		}
	}
	m.Window = strings.Join(lines[start:last+1], "\n")
	return m, nestedDup
}

// amountAfter reads the amount on the nested anchor's own line, falling back to
// the next line when the anchor row wrapped.
func (s *Scanner) amountAfter(lines []string, j, end int, rest string) (*entity.Amount, bool) {
	if a, ok := firstAmount(rest); ok {
		return a, true
	}
	if j+1 < end {
		next := lines[j+1]
		if _, _, isItem := s.matchItem(next); isItem {
			return nil, false
		}
		if _, isNested := s.matchNested(next); isNested {
			return nil, false
		}
		return firstAmount(next)
	}
	return nil, false
}

// matchItem reports whether line opens an item section and returns the text after the anchor.
func (s *Scanner) matchItem(line string) (constants.Item, string, bool) {
	if line == "" {
		return "", "", false
	}
	body := reEnumerator.ReplaceAllString(line, "")
	for _, ir := range s.rules.Items {
		for _, anchor := range ir.Anchors {
			if !strings.HasPrefix(body, anchor) {
				continue
			}
			rest := body[len(anchor):]
			if s.rules.StrictBoundary {
				if r, _ := utf8.DecodeRuneInString(rest); unicode.Is(unicode.Han, r) {
					continue
				}
			}
			return ir.Item, rest, true
		}
	}
	return "", "", false
}

func (s *Scanner) matchNested(line string) (string, bool) {
	for _, anchor := range s.rules.NestedAnchors {
		if idx := strings.Index(line, anchor); idx >= 0 {
			return line[idx+len(anchor):], true
		}
	}
	return "", false
}

// firstAmount returns the first amount-shaped field of text. A dash
// placeholder settles the search with a nil amount. A leading bare one or two
// digit field followed by a formatted amount is a note reference and skipped.
func firstAmount(text string) (*entity.Amount, bool) {
	text = strings.TrimLeft(text, " :：,，")
	fields := strings.Fields(text)
	for k, f := range fields {
		f = strings.TrimRight(f, ",，;；。")
		if k+1 < len(fields) && isUnitToken(fields[k+1]) {
			f += fields[k+1]
		}
		if k == 0 && isNoteRef(f, fields[1:]) {
			continue
		}
		a, err := ParseAmount(f)
		if errors.Is(err, ErrPlaceholder) {
			return nil, true
		}
		if err == nil {
			return &a, true
		}
	}
	return nil, false
}

func isNoteRef(f string, rest []string) bool {
	if len(f) > 2 || !isDigits(f) || len(rest) == 0 {
		return false
	}
	return strings.ContainsAny(rest[0], ",.")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
