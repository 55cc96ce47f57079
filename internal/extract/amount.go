package extract

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/text/width"

	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

var (
	// ErrNotAmount is returned for tokens that are not amount-shaped.
	ErrNotAmount = errors.New("not an amount")
	// ErrPlaceholder is returned for dash placeholders that stand for an empty cell.
	ErrPlaceholder = errors.New("empty amount placeholder")
)

// Unit suffixes, longest first so 万元 wins over 元.
var unitSuffixes = []struct {
	suffix string
	factor int64
}{
	{"亿元", 100_000_000},
	{"亿", 100_000_000},
	{"千万元", 10_000_000},
	{"千万", 10_000_000},
	{"百万元", 1_000_000},
	{"百万", 1_000_000},
	{"万元", 10_000},
	{"万", 10_000},
	{"千元", 1_000},
	{"元", 1},
}

var (
	reNumber      = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?$`)
	rePlaceholder = regexp.MustCompile(`^[-—–_/]+$`)
)

// ParseAmount normalizes an amount token to yuan. It accepts thousands
// separators, parenthesized or leading-minus negatives, a currency sign and
// the 元/千元/万/百万/千万/亿 unit suffixes (with or without 元).
func ParseAmount(raw string) (entity.Amount, error) {
	s := width.Fold.String(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return entity.Amount{}, ErrNotAmount
	}
	if rePlaceholder.MatchString(s) {
		return entity.Amount{}, ErrPlaceholder
	}

	neg := false
	factor := int64(1)
	for i := 0; i < 2; i++ {
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && !neg {
			neg = true
			s = s[1 : len(s)-1]
		}
		if factor == 1 {
			for _, u := range unitSuffixes {
				if strings.HasSuffix(s, u.suffix) {
					factor = u.factor
					s = strings.TrimSuffix(s, u.suffix)
					break
				}
			}
		}
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "¥"), "￥")
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "−") {
		if neg {
			return entity.Amount{}, fmt.Errorf("%w: double negative %q", ErrNotAmount, raw)
		}
		neg = true
		s = strings.TrimLeft(s, "-−")
	}
	if !reNumber.MatchString(s) {
		return entity.Amount{}, fmt.Errorf("%w: %q", ErrNotAmount, raw)
	}

	fen, err := toFen(strings.ReplaceAll(s, ",", ""), factor)
	if err != nil {
		return entity.Amount{}, fmt.Errorf("%w: %q: %v", ErrNotAmount, raw, err)
	}
	if neg {
		fen = -fen
	}
	return entity.Amount{Fen: fen}, nil
}

// toFen computes digits*factor*100 rounded half away from zero.
func toFen(digits string, factor int64) (int64, error) {
	intPart, fracPart, _ := strings.Cut(digits, ".")
	mantissa, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return 0, fmt.Errorf("bad digits %q", digits)
	}
	num := mantissa.Mul(mantissa, big.NewInt(factor*100))
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(fracPart))), nil)

	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Lsh(r, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsInt64() || q.Int64() > math.MaxInt64/2 {
		return 0, fmt.Errorf("amount out of range")
	}
	return q.Int64(), nil
}

// isUnitToken reports whether a whitespace-separated field is a bare unit.
func isUnitToken(s string) bool {
	for _, u := range unitSuffixes {
		if s == u.suffix {
			return true
		}
	}
	return false
}
