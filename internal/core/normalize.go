package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrMissingDate marks an entry whose date cannot be resolved. Such entries
// are dropped.
var ErrMissingDate = errors.New("entry has no usable date")

type IssueKind string

const (
	IssueMalformedAmount  IssueKind = "malformed_amount"
	IssueUnrecognizedType IssueKind = "unrecognized_type"
	IssueMissingDate      IssueKind = "missing_date"
)

// Issue records a recoverable problem found while normalizing an entry.
type Issue struct {
	Kind  IssueKind
	Date  string
	Value string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s on %s: %q", i.Kind, i.Date, i.Value)
}

// Report summarizes a month's normalization.
type Report struct {
	Dropped int
	Issues  []Issue
}

// lookup returns the value under the lowercase key, then the capitalized
// key. Nil values and blank strings count as absent.
func lookup(raw RawEntry, key string) (any, bool) {
	for _, k := range []string{key, capitalize(key)} {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func lookupString(raw RawEntry, key string) (string, bool) {
	v, ok := lookup(raw, key)
	if !ok {
		return "", false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s), true
	}
	return strings.TrimSpace(fmt.Sprint(v)), true
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Normalize turns one raw entry into a Transaction. dateKey is the
// YYYY-MM-DD key the entry was stored under; when it is empty or invalid the
// entry's own date field is used. Missing fields take their defaults
// (type Expense, category Uncategorized, amount 0, empty notes). An
// unparseable amount becomes 0 and is reported as an issue.
func Normalize(dateKey string, raw RawEntry) (Transaction, []Issue, error) {
	date, err := resolveDate(dateKey, raw)
	if err != nil {
		return Transaction{}, nil, err
	}

	tx := Transaction{
		Date:     date,
		Type:     TypeExpense,
		Category: DefaultCategory,
	}
	var issues []Issue

	if s, ok := lookupString(raw, "type"); ok {
		tx.Type = ParseTxType(s)
		if !tx.Type.IsKnown() {
			issues = append(issues, Issue{Kind: IssueUnrecognizedType, Date: date.String(), Value: s})
		}
	}
	if s, ok := lookupString(raw, "category"); ok {
		tx.Category = s
	}
	if v, ok := lookup(raw, "amount"); ok {
		amount, err := ParseAmount(v)
		if err != nil {
			issues = append(issues, Issue{Kind: IssueMalformedAmount, Date: date.String(), Value: fmt.Sprint(v)})
		} else {
			tx.Amount = amount
		}
	}
	if s, ok := lookupString(raw, "notes"); ok {
		tx.Notes = s
	}
	return tx, issues, nil
}

func resolveDate(dateKey string, raw RawEntry) (Date, error) {
	if d, err := ParseDate(dateKey); err == nil {
		return d, nil
	}
	if s, ok := lookupString(raw, "date"); ok {
		if d, err := ParseDate(s); err == nil {
			return d, nil
		}
	}
	return Date{}, ErrMissingDate
}

// NormalizeMonth normalizes every entry of a month. Output order is
// deterministic: date keys ascending, entries in stored order within a key.
func NormalizeMonth(store MonthlyRawStore) ([]Transaction, Report) {
	keys := make([]string, 0, len(store))
	for k := range store {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		out    []Transaction
		report Report
	)
	for _, k := range keys {
		for _, raw := range store[k] {
			tx, issues, err := Normalize(k, raw)
			if err != nil {
				report.Dropped++
				report.Issues = append(report.Issues, Issue{Kind: IssueMissingDate, Date: k})
				continue
			}
			report.Issues = append(report.Issues, issues...)
			out = append(out, tx)
		}
	}
	return out, report
}

// GroupByDate builds a MonthlyRawStore from a flat entry list using each
// entry's date or Date field. Entries without a usable date are kept under
// the empty key so NormalizeMonth can count them as dropped.
func GroupByDate(entries []RawEntry) MonthlyRawStore {
	store := make(MonthlyRawStore)
	for _, raw := range entries {
		key := ""
		if s, ok := lookupString(raw, "date"); ok {
			if d, err := ParseDate(s); err == nil {
				key = d.String()
			}
		}
		store[key] = append(store[key], raw)
	}
	return store
}

// ToRaw converts a transaction back to the raw form stores exchange.
func (tx Transaction) ToRaw() RawEntry {
	return RawEntry{
		"date":     tx.Date.String(),
		"type":     tx.Type.Label(),
		"category": tx.Category,
		"amount":   tx.Amount.String(),
		"notes":    tx.Notes,
	}
}
