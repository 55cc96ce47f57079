package entity

import (
	"strings"
)

// NormalizeStockCode zero-pads a numeric code to six digits and appends the
// exchange suffix implied by its prefix. Codes that already carry a suffix are
// upper-cased; unknown prefixes are returned padded but without a suffix.
func NormalizeStockCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return ""
	}
	if i := strings.IndexByte(code, '.'); i >= 0 {
		num, suffix := code[:i], code[i:]
		if isNumeric(num) && len(num) < 6 {
			num = strings.Repeat("0", 6-len(num)) + num
		}
		return num + suffix
	}
	if !isNumeric(code) {
		return code
	}
	if len(code) < 6 {
		code = strings.Repeat("0", 6-len(code)) + code
	}
	return code + ExchangeSuffix(code)
}

// ExchangeSuffix maps a six digit code to ".SH", ".SZ" or ".BJ", or "" when unknown.
func ExchangeSuffix(code string) string {
	if len(code) < 2 {
		return ""
	}
	switch code[:2] {
	case "60", "68":
		return ".SH"
	case "00", "30":
		return ".SZ"
	case "83", "87", "92", "43":
		return ".BJ"
	}
	return ""
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
