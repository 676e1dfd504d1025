package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TinybarsPerHbar is the number of tinybars (the ledger's smallest unit) in one HBAR.
const TinybarsPerHbar = 100_000_000

var tinybarScale = decimal.NewFromInt(TinybarsPerHbar)

// ToTinybars converts a decimal HBAR amount into tinybars. Amounts with more
// precision than one tinybar are rejected rather than rounded.
func ToTinybars(hbar decimal.Decimal) (int64, error) {
	scaled := hbar.Mul(tinybarScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s exceeds tinybar precision", hbar.String())
	}
	if !scaled.Abs().LessThanOrEqual(decimal.NewFromInt(1 << 62)) {
		return 0, fmt.Errorf("amount %s out of range", hbar.String())
	}
	return scaled.IntPart(), nil
}

// ToHbar converts tinybars into a decimal HBAR amount.
func ToHbar(tinybars int64) decimal.Decimal {
	return decimal.New(tinybars, -8)
}

// ParseHbar parses a decimal string such as "0.0001" into tinybars.
func ParseHbar(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse hbar amount %q: %w", s, err)
	}
	return ToTinybars(d)
}
