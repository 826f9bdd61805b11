// Package money implements fixed-point currency amounts stored as integer minor units.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MinorPerMajor is the number of minor units (toea) in one major unit (kina).
const MinorPerMajor = 100

// BasisPointsPerWhole expresses 100% in basis points.
const BasisPointsPerWhole = 10000

// MaxAmount is the largest magnitude Parse and Mul produce: ten trillion
// major units. Sums of a few thousand such amounts still fit in int64.
const MaxAmount Amount = 1_000_000_000_000_000

var (
	// ErrNegativeResult is returned when an operation would produce an amount below zero.
	ErrNegativeResult = errors.New("money: negative result")
	// ErrInvalidAmount indicates an unparsable or out of range amount.
	ErrInvalidAmount = errors.New("money: invalid amount")
	// ErrInvalidRate indicates an unparsable or out of range percentage.
	ErrInvalidRate = errors.New("money: invalid rate")
	// ErrOverflow is returned when a product would exceed MaxAmount.
	ErrOverflow = errors.New("money: amount out of range")
)

var maxDecimal = decimal.NewFromInt(int64(MaxAmount))

var hundred = decimal.NewFromInt(MinorPerMajor)

// Amount is a quantity of currency in minor units.
type Amount int64

// Rate is a percentage expressed in basis points (1% = 100).
type Rate int64

// FromMinor wraps a raw minor unit count.
func FromMinor(v int64) Amount { return Amount(v) }

// FromMajor converts whole currency units into an Amount.
func FromMajor(v int64) Amount { return Amount(v * MinorPerMajor) }

// Minor returns the raw minor unit count.
func (a Amount) Minor() int64 { return int64(a) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool { return a < 0 }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a - b, failing when the result would be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %s - %s", ErrNegativeResult, a, b)
	}
	return a - b, nil
}

// Diff returns the signed difference a - b. Used for variances and change.
func (a Amount) Diff(b Amount) Amount { return a - b }

// Mul multiplies the amount by an integer quantity, failing with ErrOverflow
// when the product's magnitude would exceed MaxAmount.
func (a Amount) Mul(qty int64) (Amount, error) {
	if a == 0 || qty == 0 {
		return 0, nil
	}
	if abs(a) > MaxAmount || abs(Amount(qty)) > MaxAmount/abs(a) {
		return 0, fmt.Errorf("%w: %s x %d", ErrOverflow, a, qty)
	}
	return a * Amount(qty), nil
}

// abs saturates at math.MaxInt64 for math.MinInt64.
func abs(a Amount) Amount {
	if a < 0 {
		if a == Amount(math.MinInt64) {
			return Amount(math.MaxInt64)
		}
		return -a
	}
	return a
}

// Percentage returns rate of the amount rounded half-up to the nearest minor unit.
func (a Amount) Percentage(rate Rate) Amount {
	v := decimal.NewFromInt(int64(a)).
		Mul(decimal.NewFromInt(int64(rate))).
		Div(decimal.NewFromInt(BasisPointsPerWhole)).
		Round(0)
	return Amount(v.IntPart())
}

// Sum adds a list of amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// Split distributes total across n parts that sum exactly to total. Leftover
// minor units go to the leading parts.
func Split(total Amount, n int) []Amount {
	if n <= 0 {
		return nil
	}
	base := total / Amount(n)
	rem := int(total % Amount(n))
	parts := make([]Amount, n)
	for i := range parts {
		parts[i] = base
		if i < rem {
			parts[i]++
		}
	}
	return parts
}

// Parse reads a major unit string such as "450", "450.5" or "1,200.00".
func Parse(s string) (Amount, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if clean == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}
	minor := d.Mul(hundred)
	if minor.GreaterThan(maxDecimal) {
		return 0, fmt.Errorf("%w: %q exceeds %s", ErrInvalidAmount, s, MaxAmount)
	}
	return Amount(minor.IntPart()), nil
}

// Decimal converts the amount into major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String renders the amount in major units with two decimals, e.g. "450.00".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// Format renders the amount with thousands separators and the ISO currency code,
// e.g. "PGK 1,200.50".
func (a Amount) Format(code string) string {
	p := message.NewPrinter(language.English)
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	body := sign + p.Sprintf("%d", v/MinorPerMajor) + fmt.Sprintf(".%02d", v%MinorPerMajor)
	if code == "" {
		return body
	}
	return code + " " + body
}

// ValidCurrency reports whether code is a recognised ISO 4217 currency.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}

// ParseRate reads a percentage such as "10" or "12.5" into basis points.
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	bp := d.Mul(hundred)
	if !bp.Equal(bp.Round(0)) {
		return 0, fmt.Errorf("%w: %q is finer than 0.01%%", ErrInvalidRate, s)
	}
	r := Rate(bp.IntPart())
	if !r.Valid() {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidRate, s)
	}
	return r, nil
}

// Percent builds a Rate from a whole percentage.
func Percent(p int64) Rate { return Rate(p * 100) }

// Valid reports whether the rate lies within 0–100%.
func (r Rate) Valid() bool { return r >= 0 && r <= BasisPointsPerWhole }

// Complement returns 100% - r.
func (r Rate) Complement() Rate { return BasisPointsPerWhole - r }

// String renders the rate as a percentage, e.g. "10.00%".
func (r Rate) String() string {
	return decimal.New(int64(r), -2).StringFixed(2) + "%"
}
