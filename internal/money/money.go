// Package money provides exact decimal amounts for sales arithmetic.
package money

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// amountPrecision matches IEEE 754-2008 decimal128, which is more than
// enough for currency sums.
const amountPrecision = 34

// Amount is an exact decimal monetary value. The zero value is usable
// and represents 0.
type Amount struct {
	value apd.Decimal
}

// Parse parses a decimal string such as "30.00" into an Amount.
func Parse(s string) (Amount, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	return Amount{value: d}, nil
}

// MustParse parses a decimal string and panics on failure. Intended for
// constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return a
}

// FromInt64 returns an Amount holding the given integer value.
func FromInt64(i int64) Amount {
	var d apd.Decimal
	d.SetInt64(i)

	return Amount{value: d}
}

// String returns the canonical decimal representation.
func (a Amount) String() string {
	return a.value.String()
}

// IsZero reports whether the amount equals zero.
func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// Cmp compares a and other, returning -1, 0, or +1.
func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(&other.value)
}

// Add returns the exact sum of a and other.
func (a Amount) Add(other Amount) Amount {
	var result apd.Decimal

	ctx := apd.BaseContext.WithPrecision(amountPrecision)
	ctx.Add(&result, &a.value, &other.value)

	return Amount{value: result}
}

// MulInt64 returns the exact product of a and the given integer.
func (a Amount) MulInt64(n int64) Amount {
	var factor apd.Decimal
	factor.SetInt64(n)

	var result apd.Decimal

	ctx := apd.BaseContext.WithPrecision(amountPrecision)
	ctx.Mul(&result, &a.value, &factor)

	return Amount{value: result}
}

// Float64 returns a floating approximation of the amount. Only for
// ranking scores, never for accumulation.
func (a Amount) Float64() (float64, error) {
	f, err := a.value.Float64()
	if err != nil {
		return 0, fmt.Errorf("amount %s not representable as float64: %w", a.String(), err)
	}

	return f, nil
}

// MarshalJSON encodes the amount as a bare JSON number, preserving the
// exact decimal representation.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.value.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(data, `"`)

	parsed, err := Parse(string(raw))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}
