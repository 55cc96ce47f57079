package textextract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "h1,h2,h3,h4,h5,h6,p,li,pre,dt,dd,tr,div"

// htmlLines flattens an HTML disclosure into lines: one per table row (cells
// separated by a space) and one per leaf block element, in document order.
func htmlLines(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script,style,noscript,head").Remove()

	var lines []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "tr" {
			if s.ParentsFiltered("tr").Length() > 0 {
				return
			}
			cells := s.ChildrenFiltered("td,th").Map(func(_ int, c *goquery.Selection) string {
				return collapse(c.Text())
			})
			if line := strings.TrimSpace(strings.Join(cells, " ")); line != "" {
				lines = append(lines, line)
			}
			return
		}
		if s.ParentsFiltered("tr").Length() > 0 {
			return
		}
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if line := collapse(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})

	if len(lines) == 0 {
		if txt := collapse(doc.Text()); txt != "" {
			lines = append(lines, txt)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
