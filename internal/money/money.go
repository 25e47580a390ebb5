// Package money implements the fixed-point currency amount used by every
// cash register component. Amounts are stored as int64 minor units (cents)
// so sums and differences never drift; decimal.Decimal is only used at the
// edges (parsing, formatting, percentage math).
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places carried by Money.
const Scale = 2

// ErrMalformed is returned when an amount cannot be represented exactly.
var ErrMalformed = errors.New("money: malformed amount")

var hundred = decimal.NewFromInt(100)

// Money is an amount expressed in minor units.
type Money int64

// Zero is the zero amount.
const Zero Money = 0

// FromMinor builds a Money from minor units (cents).
func FromMinor(cents int64) Money { return Money(cents) }

// FromInt builds a Money from whole currency units.
func FromInt(units int64) Money { return Money(units * 100) }

// FromDecimal converts d into Money. Values with more than two decimal places
// are rejected instead of silently rounded.
func FromDecimal(d decimal.Decimal) (Money, error) {
	shifted := d.Shift(Scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimals", ErrMalformed, d.String(), Scale)
	}
	if shifted.BigInt().BitLen() > 62 {
		return 0, fmt.Errorf("%w: %s out of range", ErrMalformed, d.String())
	}
	return Money(shifted.IntPart()), nil
}

// Parse reads a plain decimal string such as "1500.50".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Minor() int64 { return int64(m) }
func (m Money) Add(o Money) Money { return m + o }
func (m Money) Sub(o Money) Money { return m - o }
func (m Money) Neg() Money { return -m }
func (m Money) IsZero() bool { return m == 0 }
func (m Money) IsPositive() bool { return m > 0 }
func (m Money) IsNegative() bool { return m < 0 }
func (m Money) GreaterThan(o Money) bool { return m > o }
func (m Money) LessThan(o Money) bool { return m < o }
func (m Money) GreaterOrEqual(o Money) bool { return m >= o }

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Decimal returns the amount as a decimal with two places.
func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -Scale) }

// String formats the amount with exactly two decimals.
func (m Money) String() string { return m.Decimal().StringFixed(Scale) }

// Percent returns m × pct / 100 rounded half-up to the cent.
// Amounts handled here are never negative; for negative inputs the rounding
// is half away from zero.
func (m Money) Percent(pct decimal.Decimal) Money {
	cents := decimal.NewFromInt(int64(m)).Mul(pct).Div(hundred).Round(0)
	return Money(cents.IntPart())
}

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

// Allocate splits total across weights proportionally using the largest
// remainder method. The returned parts always sum to total exactly.
// When every weight is zero the whole total goes to the first part.
func Allocate(total Money, weights []Money) []Money {
	parts := make([]Money, len(weights))
	if len(weights) == 0 {
		return parts
	}
	var weightSum int64
	for _, w := range weights {
		weightSum += int64(w)
	}
	if weightSum == 0 {
		parts[0] = total
		return parts
	}

	tot := decimal.NewFromInt(int64(total))
	ws := decimal.NewFromInt(weightSum)
	remainders := make([]decimal.Decimal, len(weights))
	var allocated Money
	for i, w := range weights {
		exact := tot.Mul(decimal.NewFromInt(int64(w))).Div(ws)
		floor := exact.Floor()
		parts[i] = Money(floor.IntPart())
		remainders[i] = exact.Sub(floor)
		allocated += parts[i]
	}

	// Hand out the leftover cents to the largest remainders; ties go to the
	// earliest index so the result is deterministic.
	for left := total - allocated; left > 0; left-- {
		best := -1
		for i := range remainders {
			if best == -1 || remainders[i].GreaterThan(remainders[best]) {
				best = i
			}
		}
		parts[best]++
		remainders[best] = decimal.NewFromInt(-1)
	}
	return parts
}

// ── Encoding ─────────────────────────────────────────────────────────────────

// MarshalJSON renders the amount as a fixed two-decimal string, matching how
// decimal.Decimal values are serialized elsewhere in the API.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*m = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value implements driver.Valuer; columns are decimal(14,2).
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case int64:
		*m = FromInt(v)
		return nil
	case float64:
		parsed, err := FromDecimal(decimal.NewFromFloat(v).Round(Scale))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

func (m *Money) scanString(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	// numeric(14,2) columns never carry more than two places, but SUM()
	// results can come back as e.g. "10.000"; normalise before converting.
	parsed, err := FromDecimal(d.Round(Scale))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
