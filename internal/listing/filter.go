package listing

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

// shanghai is the zone announcement timestamps are published in.
var shanghai = time.FixedZone("CST", 8*3600)

const dateLayout = "2006-01-02"

// Window is an inclusive range of announcement dates.
type Window struct {
	From time.Time
	To   time.Time
}

// SeDate renders the window as the endpoint's seDate parameter.
func (w Window) SeDate() string {
	return w.From.Format(dateLayout) + "~" + w.To.Format(dateLayout)
}

// Windows splits [start, end] by mode: "day" yields one window per day, "week"
// seven day chunks, anything else the whole range.
func Windows(start, end time.Time, mode string) []Window {
	if end.Before(start) {
		return nil
	}
	step := 0
	switch mode {
	case "day":
		step = 1
	case "week":
		step = 7
	default:
		return []Window{{From: start, To: end}}
	}
	var out []Window
	for from := start; !from.After(end); from = from.AddDate(0, 0, step) {
		to := from.AddDate(0, 0, step-1)
		if to.After(end) {
			to = end
		}
		out = append(out, Window{From: from, To: to})
	}
	return out
}

// TargetYears lists the fiscal years a window publishes reports for: both ends
// are moved back three months and every year in between is kept.
func TargetYears(start, end time.Time) []int {
	from := start.AddDate(0, -3, 0).Year()
	to := end.AddDate(0, -3, 0).Year()
	years := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}

// Filter drops titles that are not the full Chinese report for a target year.
type Filter struct {
	Years []int
}

// Reason returns why a title is rejected, or "" when it is kept.
func (f Filter) Reason(title string) string {
	if strings.Contains(title, "摘要") {
		return "summary"
	}
	if strings.Contains(title, "英文版") {
		return "english"
	}
	if len(f.Years) == 0 || !hasDigit(title) {
		return ""
	}
	for _, y := range f.Years {
		if strings.Contains(title, strconv.Itoa(y)) {
			return ""
		}
	}
	return "year"
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// ToDescriptor maps an announcement to a descriptor row. staticURL prefixes the
// adjunct path.
func ToDescriptor(a Announcement, staticURL string, rt constants.ReportType) entity.Descriptor {
	title := strings.TrimSpace(stripHighlight(a.AnnouncementTitle))
	if rt == constants.ReportUndefined {
		rt = constants.InferReportType(title)
	}
	return entity.Descriptor{
		StockCode:   entity.NormalizeStockCode(a.SecCode),
		CompanyName: strings.TrimSpace(a.SecName),
		Title:       title,
		ReportDate:  announcementDate(a.AnnouncementTime),
		URL:         strings.TrimRight(staticURL, "/") + "/" + strings.TrimLeft(a.AdjunctURL, "/"),
		ReportType:  rt,
	}
}

// stripHighlight removes the <em> tags added when isHLtitle is set.
func stripHighlight(s string) string {
	return strings.NewReplacer("<em>", "", "</em>", "").Replace(s)
}

// announcementDate accepts epoch milliseconds or a "YYYY-MM-DD hh:mm:ss" string.
func announcementDate(v any) string {
	switch t := v.(type) {
	case float64:
		if t <= 0 || math.IsNaN(t) {
			return ""
		}
		return time.UnixMilli(int64(t)).In(shanghai).Format(dateLayout)
	case string:
		t = strings.TrimSpace(t)
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return announcementDate(float64(ms))
		}
		if i := strings.IndexByte(t, ' '); i >= 0 {
			t = t[:i]
		}
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// KeepNewest drops repeated (code, company, title) rows, then keeps the most
// recent report per stock code. Rows without a code are kept by URL. The
// result is sorted by code.
func KeepNewest(ds []entity.Descriptor) []entity.Descriptor {
	seenTitle := make(map[string]struct{}, len(ds))
	best := make(map[string]entity.Descriptor, len(ds))
	order := make([]string, 0, len(ds))
	for _, d := range ds {
		tk := d.StockCode + "\x00" + d.CompanyName + "\x00" + d.Title
		if _, dup := seenTitle[tk]; dup {
			continue
		}
		seenTitle[tk] = struct{}{}

		key := d.StockCode
		if key == "" {
			key = "url:" + d.URL
		}
		cur, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = d
			continue
		}
		if d.ReportDate > cur.ReportDate {
			best[key] = d
		}
	}
	sort.Strings(order)
	out := make([]entity.Descriptor, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}
