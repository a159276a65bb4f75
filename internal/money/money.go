// Package money provides the fixed-point amount type used by the ledger
// and P&L stores. Amounts carry two decimal places and round half-up, so
// running balances never accumulate binary floating-point drift.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a fixed-point monetary value with two decimal places.
// The zero value is a valid zero amount.
type Amount struct {
	dec decimal.Decimal
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// FromDecimal normalises a decimal to two places, rounding half-up.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{dec: d.Round(2)}
}

// FromFloat converts a float, rounding half-up to two places. Intended for
// boundary code only; internal arithmetic stays on Amount.
func FromFloat(f float64) Amount {
	return FromDecimal(decimal.NewFromFloat(f))
}

// FromInt builds an amount from whole currency units.
func FromInt(units int64) Amount {
	return Amount{dec: decimal.NewFromInt(units)}
}

// Parse reads a decimal string such as "1234.50".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for test fixtures and constants; it panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	return Amount{dec: a.dec.Add(b.dec)}
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{dec: a.dec.Sub(b.dec)}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{dec: a.dec.Neg()}
}

// Abs returns the absolute value.
func (a Amount) Abs() Amount {
	return Amount{dec: a.dec.Abs()}
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.dec.LessThan(b.dec) {
		return a
	}
	return b
}

// MulInt returns a multiplied by a whole number, used for contract totals.
func (a Amount) MulInt(n int64) Amount {
	return FromDecimal(a.dec.Mul(decimal.NewFromInt(n)))
}

// Cmp compares a against b: -1 if a<b, 0 if equal, 1 if a>b.
func (a Amount) Cmp(b Amount) int {
	return a.dec.Cmp(b.dec)
}

// Equal reports exact equality. Fully-paid checks rely on this, never on
// a tolerance.
func (a Amount) Equal(b Amount) bool {
	return a.dec.Equal(b.dec)
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.dec.IsZero()
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool {
	return a.dec.IsNegative()
}

// IsPositive reports whether the amount is above zero.
func (a Amount) IsPositive() bool {
	return a.dec.IsPositive()
}

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.dec.LessThan(b.dec)
}

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool {
	return a.dec.GreaterThan(b.dec)
}

// Decimal exposes the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.dec
}

// Float64 approximates the amount for metrics and display widgets.
func (a Amount) Float64() float64 {
	f, _ := a.dec.Float64()
	return f
}

// String renders with exactly two decimal places.
func (a Amount) String() string {
	return a.dec.StringFixed(2)
}

// MarshalJSON renders the amount as a plain decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal literals.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*a = Amount{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer so amounts bind to NUMERIC columns.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (a *Amount) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("money: scan: %w", err)
	}
	*a = FromDecimal(d)
	return nil
}
