package entity

import (
	"fmt"
	"strconv"
)

// Amount is a signed yuan value held in fen (hundredths) to keep sums exact.
type Amount struct {
	Fen int64
}

// AmountFromFloat rounds to the nearest fen.
func AmountFromFloat(v float64) Amount {
	if v < 0 {
		return Amount{Fen: -int64(-v*100 + 0.5)}
	}
	return Amount{Fen: int64(v*100 + 0.5)}
}

// Float64 is the value in yuan.
func (a Amount) Float64() float64 {
	return float64(a.Fen) / 100
}

// String renders the value in yuan with two decimals, e.g. "-500.00".
func (a Amount) String() string {
	sign := ""
	fen := a.Fen
	if fen < 0 {
		sign = "-"
		fen = -fen
	}
	return fmt.Sprintf("%s%d.%02d", sign, fen/100, fen%100)
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{Fen: a.Fen + b.Fen}
}

// ParseAmountString reads back a value produced by String.
func ParseAmountString(s string) (Amount, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return AmountFromFloat(v), nil
}
