// Package money provides arbitrary-precision decimal arithmetic for
// monetary and ratio values used throughout the risk engine. All
// account balances, position sizes, prices and margin figures flow
// through this package instead of float64 so that rounding behavior
// is deterministic and reproducible across the engine and the
// ledger's stored procedures.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is an arbitrary-precision decimal value.
type Amount = decimal.Decimal

func init() {
	// Quotients carry 28 digits after the point. Every other
	// operation is exact; rounding to the ledger's NUMERIC scale
	// happens in Postgres at the serialization boundary.
	decimal.DivisionPrecision = 28
}

// Parse converts a string (as read from Postgres NUMERIC columns or
// incoming price feed messages) into an Amount.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is like Parse but panics on error. Intended for constants
// and test fixtures where the input is known to be valid.
func MustParse(s string) Amount {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero is the additive identity.
var Zero = decimal.Zero

// Hundred is used pervasively when converting ratios to percentages
// for margin-level and drawdown comparisons.
var Hundred = MustParse("100")

// Add returns a+b.
func Add(a, b Amount) Amount {
	return a.Add(b)
}

// Sub returns a-b.
func Sub(a, b Amount) Amount {
	return a.Sub(b)
}

// Mul returns a*b.
func Mul(a, b Amount) Amount {
	return a.Mul(b)
}

// SafeDiv returns a/b, resolving to Zero when b is zero instead of
// panicking. Margin-level and drawdown ratios are defined to be zero
// (read: "no risk") when their denominator hasn't been established
// yet, e.g. an account with no equity history.
func SafeDiv(a, b Amount) Amount {
	if b.IsZero() {
		return Zero
	}
	return a.Div(b)
}

// Neg returns -a.
func Neg(a Amount) Amount {
	return a.Neg()
}

// Cmp compares a and b, returning -1, 0 or 1.
func Cmp(a, b Amount) int {
	return a.Cmp(b)
}

// IsZero reports whether a is zero.
func IsZero(a Amount) bool {
	return a.IsZero()
}

// IsNeg reports whether a is strictly negative.
func IsNeg(a Amount) bool {
	return a.IsNegative()
}

// GTE reports whether a >= b.
func GTE(a, b Amount) bool {
	return a.Cmp(b) >= 0
}

// LTE reports whether a <= b.
func LTE(a, b Amount) bool {
	return a.Cmp(b) <= 0
}

// GT reports whether a > b.
func GT(a, b Amount) bool {
	return a.Cmp(b) > 0
}

// LT reports whether a < b.
func LT(a, b Amount) bool {
	return a.Cmp(b) < 0
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
