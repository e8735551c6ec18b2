// Package core holds the transaction model and the normalization rules that
// turn raw store entries into transactions.
//
// Amounts are exact decimals; totals over many records never accumulate
// floating point drift.
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// DefaultCurrencySymbol prefixes formatted amounts unless configured otherwise.
const DefaultCurrencySymbol = "₹"

// Money is a non-negative decimal amount. The zero value is 0.
type Money struct {
	value decimal.Decimal
}

// NewMoney wraps an existing decimal.
func NewMoney(d decimal.Decimal) Money {
	return Money{value: d}
}

// MustMoney parses s and panics on failure. Meant for tests and constants.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMoney parses a decimal string. A leading currency symbol is dropped.
// A lone comma followed by one or two digits is a decimal point (12,34);
// otherwise commas must group the integer part by thousands (1,200.00).
// Negative values are rejected.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.TrimLeftFunc(strings.TrimSpace(s), unicode.IsSymbol))
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	plain, ok := normalizeSeparators(s)
	if !ok {
		return Money{}, fmt.Errorf("%w: bad separators in %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(plain)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative %q", ErrInvalidAmount, s)
	}
	return Money{value: d}, nil
}

func normalizeSeparators(s string) (string, bool) {
	if !strings.Contains(s, ",") {
		return s, true
	}
	intPart, frac, hasDot := strings.Cut(s, ".")
	if !hasDot && strings.Count(s, ",") == 1 {
		before, after, _ := strings.Cut(s, ",")
		if before != "" && (len(after) == 1 || len(after) == 2) {
			return strings.Replace(s, ",", ".", 1), true
		}
	}
	groups := strings.Split(intPart, ",")
	if lead := strings.TrimLeft(groups[0], "+-"); lead == "" || len(lead) > 3 {
		return "", false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", false
		}
	}
	out := strings.Join(groups, "")
	if hasDot {
		out += "." + frac
	}
	return out, true
}

// ParseAmount converts a raw store value to Money. Strings, json.Number,
// floats and integers are accepted.
func ParseAmount(v any) (Money, error) {
	switch x := v.(type) {
	case nil:
		return Money{}, ErrInvalidAmount
	case Money:
		return x, nil
	case string:
		return ParseMoney(x)
	case json.Number:
		return ParseMoney(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Money{}, ErrInvalidAmount
		}
		return ParseMoney(decimal.NewFromFloat(x).String())
	case float32:
		return ParseAmount(float64(x))
	case int:
		return ParseMoney(fmt.Sprint(x))
	case int64:
		return ParseMoney(fmt.Sprint(x))
	default:
		return Money{}, fmt.Errorf("%w: unsupported %T", ErrInvalidAmount, v)
	}
}

func (m Money) Decimal() decimal.Decimal { return m.value }

func (m Money) Add(o Money) Money { return Money{value: m.value.Add(o.value)} }

func (m Money) Mul(n int64) Money { return Money{value: m.value.Mul(decimal.NewFromInt(n))} }

func (m Money) Cmp(o Money) int { return m.value.Cmp(o.value) }

func (m Money) IsZero() bool { return m.value.IsZero() }

func (m Money) IsNegative() bool { return m.value.IsNegative() }

func (m Money) IsPositive() bool { return m.value.IsPositive() }

func (m Money) Equal(o Money) bool { return m.value.Equal(o.value) }

// String renders two decimal places, e.g. "1234.50".
func (m Money) String() string {
	return m.value.StringFixed(2)
}

// Format renders the amount with a currency symbol, e.g. "₹1234.50".
func (m Money) Format(symbol string) string {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	return symbol + m.String()
}

// Float64 is used where an external API only takes floats.
func (m Money) Float64() float64 {
	f, _ := m.value.Float64()
	return f
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		*m = Money{}
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalCSV and MarshalYAML keep exports in the same two-decimal form.
func (m Money) MarshalCSV() (string, error) { return m.String(), nil }

func (m Money) MarshalYAML() (any, error) { return m.String(), nil }
