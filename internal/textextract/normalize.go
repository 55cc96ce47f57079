package textextract

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`[\t\f\v\x{00a0}\x{3000}]+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	// digits split by reflow: "1, 234.56" or "1 ,234.56"
	reSplitThousands = regexp.MustCompile(`(\d) ?, ?(\d{3})\b`)
)

// Normalize folds full-width characters to ASCII width and collapses noisy
// whitespace. Line breaks are kept; runs of blank lines shrink to one.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = width.Fold.String(s)
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reSplitThousands.ReplaceAllString(s, "$1,$2")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
