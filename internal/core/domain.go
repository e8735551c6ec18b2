package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	TypeExpense TxType = "expense"
	TypeIncome  TxType = "income"
	TypeSavings TxType = "savings"
	TypePayoff  TxType = "payoff"

	// FilterAll selects every record regardless of type.
	FilterAll Filter = "all"

	DefaultCategory = "Uncategorized"

	dateLayout = "2006-01-02"
)

// KnownTypes lists the recognized transaction types in display order.
var KnownTypes = []TxType{TypeExpense, TypeIncome, TypeSavings, TypePayoff}

type (
	// TxType is a lowercased transaction type. Values outside KnownTypes are
	// kept verbatim so the record can still be listed.
	TxType string

	// Filter is either FilterAll or one of the known types.
	Filter string

	Date struct {
		time.Time
	}

	// YearMonth identifies the month a view is showing.
	YearMonth struct {
		Year  int
		Month int // 1-12
	}

	Transaction struct {
		Date     Date   `json:"date" csv:"date" yaml:"date"`
		Type     TxType `json:"type" csv:"type" yaml:"type"`
		Category string `json:"category" csv:"category" yaml:"category"`
		Amount   Money  `json:"amount" csv:"amount" yaml:"amount"`
		Notes    string `json:"notes,omitempty" csv:"notes" yaml:"notes,omitempty"`
	}

	Category struct {
		Name          string `json:"name" yaml:"name"`
		Type          TxType `json:"type" yaml:"type"`
		MonthlyBudget Money  `json:"monthlyBudget" yaml:"monthlyBudget"`
	}

	// BudgetMap holds the monthly budget per type. Missing or zero entries
	// mean no budget was set.
	BudgetMap map[TxType]Money

	// RawEntry is a transaction as delivered by a store, before normalization.
	RawEntry map[string]any

	// MonthlyRawStore maps a YYYY-MM-DD key to the raw entries of that day.
	MonthlyRawStore map[string][]RawEntry
)

var (
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidYear     = errors.New("invalid year")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidFilter   = errors.New("invalid type filter")
	ErrEmptyCategory   = errors.New("empty category")
	ErrNotesTooLong    = errors.New("notes too long (max 200 characters)")
	ErrCategoryTooLong = errors.New("category too long (max 100 characters)")
)

// ParseTxType trims and lowercases s. An empty input yields TypeExpense.
func ParseTxType(s string) TxType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeExpense
	}
	return TxType(s)
}

func (t TxType) IsKnown() bool {
	switch t {
	case TypeExpense, TypeIncome, TypeSavings, TypePayoff:
		return true
	}
	return false
}

// Label returns the display name, e.g. "Expense" or "Gift".
func (t TxType) Label() string {
	if t == "" {
		return ""
	}
	return cases.Title(language.Und).String(string(t))
}

// Inverse reports whether reaching the budget is the goal (income, savings)
// rather than a ceiling (expense, payoff).
func (t TxType) Inverse() bool {
	return t == TypeIncome || t == TypeSavings
}

// ParseFilter accepts "all" or a known type, case-insensitively.
func ParseFilter(s string) (Filter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(FilterAll) {
		return FilterAll, nil
	}
	if t := TxType(s); t.IsKnown() {
		return Filter(t), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
}

// FilterFor returns the filter selecting only t.
func FilterFor(t TxType) Filter {
	return Filter(t)
}

// Match reports whether a record of type t passes the filter. Unknown
// types only ever pass FilterAll.
func (f Filter) Match(t TxType) bool {
	if f == FilterAll || f == "" {
		return true
	}
	return TxType(f) == t
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD and RFC 3339 timestamps. Only the calendar
// date is kept.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NewDate(t.Year(), int(t.Month()), t.Day()), nil
	}
	if len(s) > len(dateLayout) && s[len(dateLayout)] == 'T' {
		if t, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON shadows the promoted time.Time method so dates travel as
// "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, b)
	}
	return d.UnmarshalText([]byte(s))
}

func (d Date) MarshalCSV() (string, error) { return d.String(), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// YearMonth returns the month the date falls in.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: int(d.Month())}
}

func NewYearMonth(year, month int) (YearMonth, error) {
	ym := YearMonth{Year: year, Month: month}
	return ym, ym.Validate()
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return YearMonth{Year: t.Year(), Month: int(t.Month())}, nil
}

func (ym YearMonth) Validate() error {
	if ym.Year < 1970 || ym.Year > 9999 {
		return ErrInvalidYear
	}
	if ym.Month < 1 || ym.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// FirstDay is the date monthly entries are recorded on.
func (ym YearMonth) FirstDay() Date {
	return NewDate(ym.Year, ym.Month, 1)
}

// Add shifts the month by n, crossing year boundaries.
func (ym YearMonth) Add(n int) YearMonth {
	t := time.Date(ym.Year, time.Month(ym.Month)+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

// Contains reports whether d falls in the month.
func (ym YearMonth) Contains(d Date) bool {
	return d.Year() == ym.Year && int(d.Month()) == ym.Month
}

// Validate checks a transaction before it is written to a store.
func (tx Transaction) Validate() error {
	if err := tx.Date.Validate(); err != nil {
		return err
	}
	if !tx.Type.IsKnown() {
		return fmt.Errorf("%w: %q", ErrInvalidType, tx.Type)
	}
	if strings.TrimSpace(tx.Category) == "" {
		return ErrEmptyCategory
	}
	if len(tx.Category) > 100 {
		return ErrCategoryTooLong
	}
	if tx.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if len(tx.Notes) > 200 {
		return ErrNotesTooLong
	}
	return nil
}

// YearlyBudget is twelve times the monthly budget.
func (c Category) YearlyBudget() Money {
	return c.MonthlyBudget.Mul(12)
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	if !c.Type.IsKnown() {
		return fmt.Errorf("%w: %q", ErrInvalidType, c.Type)
	}
	if c.MonthlyBudget.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Get returns the budget for t, zero when unset.
func (b BudgetMap) Get(t TxType) Money {
	if b == nil {
		return Money{}
	}
	return b[t]
}

// BudgetFromCategories sums the monthly budgets of categories per type.
// Categories with unknown types are ignored.
func BudgetFromCategories(categories []Category) BudgetMap {
	budget := make(BudgetMap)
	for _, c := range categories {
		if !c.Type.IsKnown() || !c.MonthlyBudget.IsPositive() {
			continue
		}
		budget[c.Type] = budget[c.Type].Add(c.MonthlyBudget)
	}
	return budget
}
