// Package money centralizes the exact fixed-point decimal arithmetic the
// ledger requires (spec.md §9: "no floating point ... >= 6 fractional
// digits of internal precision, round only at display boundaries").
package money

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits Round and String use (log lines
// and error messages). Stored amounts are NUMERIC(20, 5) columns, and HTTP
// responses render amounts with 5 fractional digits.
const Scale = 6

func init() {
	// DivisionPrecision controls internal precision for Div; it has no
	// effect on Mul/Add/Sub, which are always exact for decimal.Decimal.
	decimal.DivisionPrecision = 16
}

// Zero is the additive identity, used throughout in place of a bare
// decimal.Decimal{} literal so intent reads clearly at call sites.
var Zero = decimal.Zero

// Round rounds amount to Scale fractional digits, for display only.
// Internal computation never rounds.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// String renders amount at the display scale (e.g. "10.000000").
func String(amount decimal.Decimal) string {
	return amount.StringFixed(Scale)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// MaxZero returns amount if positive, otherwise Zero (the `max(x, 0)`
// idiom used throughout the charging engines, spec.md §4.4 step 5).
func MaxZero(amount decimal.Decimal) decimal.Decimal {
	return Max(amount, Zero)
}

// IsPositive reports whether amount is strictly greater than zero.
func IsPositive(amount decimal.Decimal) bool {
	return amount.Sign() > 0
}

// IsNegative reports whether amount is strictly less than zero.
func IsNegative(amount decimal.Decimal) bool {
	return amount.Sign() < 0
}
