// Package ledger derives the month views from normalized transactions:
// per-type totals, the date-grouped list, the category summary and the
// budget hints. Every function is pure; callers own the input slices.
package ledger

import (
	"sort"

	"budgetbook/internal/core"
)

// Totals holds the month total of each known type. Unrecognized types are
// never counted.
type Totals struct {
	Expense core.Money `json:"expense"`
	Income  core.Money `json:"income"`
	Savings core.Money `json:"savings"`
	Payoff  core.Money `json:"payoff"`
}

// Get returns the total for t, zero for unrecognized types.
func (t Totals) Get(typ core.TxType) core.Money {
	switch typ {
	case core.TypeExpense:
		return t.Expense
	case core.TypeIncome:
		return t.Income
	case core.TypeSavings:
		return t.Savings
	case core.TypePayoff:
		return t.Payoff
	}
	return core.Money{}
}

func (t *Totals) add(tx core.Transaction) {
	switch tx.Type {
	case core.TypeExpense:
		t.Expense = t.Expense.Add(tx.Amount)
	case core.TypeIncome:
		t.Income = t.Income.Add(tx.Amount)
	case core.TypeSavings:
		t.Savings = t.Savings.Add(tx.Amount)
	case core.TypePayoff:
		t.Payoff = t.Payoff.Add(tx.Amount)
	}
}

// ComputeTotals sums amounts per known type over the whole month. The type
// filter deliberately plays no part here.
func ComputeTotals(records []core.Transaction) Totals {
	var totals Totals
	for _, tx := range records {
		totals.add(tx)
	}
	return totals
}

// EmptyReason tells a renderer why a list has no rows.
type EmptyReason string

const (
	EmptyNone    EmptyReason = ""
	EmptyNoData  EmptyReason = "no_data"
	EmptyNoMatch EmptyReason = "no_match"
)

// DateGroup is a run of records sharing one date.
type DateGroup struct {
	Date         core.Date          `json:"date"`
	Transactions []core.Transaction `json:"transactions"`
}

type ListView struct {
	Filter core.Filter `json:"filter"`
	Groups []DateGroup `json:"groups"`
	Count  int         `json:"count"`
	Empty  EmptyReason `json:"empty,omitempty"`
}

// EmptyFor reports why matched, the filtered subset of records, has no rows.
func EmptyFor(records, matched []core.Transaction) EmptyReason {
	switch {
	case len(records) == 0:
		return EmptyNoData
	case len(matched) == 0:
		return EmptyNoMatch
	}
	return EmptyNone
}

// BuildList filters the records, orders them newest first and groups
// consecutive records of the same date. Records sharing a date keep their
// input order.
func BuildList(records []core.Transaction, filter core.Filter) ListView {
	view := ListView{Filter: filter}
	rows := NewestFirst(Filtered(records, filter))
	if view.Empty = EmptyFor(records, rows); view.Empty != EmptyNone {
		return view
	}

	for _, tx := range rows {
		n := len(view.Groups)
		if n > 0 && view.Groups[n-1].Date.Equal(tx.Date.Time) {
			view.Groups[n-1].Transactions = append(view.Groups[n-1].Transactions, tx)
			continue
		}
		view.Groups = append(view.Groups, DateGroup{Date: tx.Date, Transactions: []core.Transaction{tx}})
	}
	view.Count = len(rows)
	return view
}

// Filtered returns the records passing filter in input order.
func Filtered(records []core.Transaction, filter core.Filter) []core.Transaction {
	out := make([]core.Transaction, 0, len(records))
	for _, tx := range records {
		if filter.Match(tx.Type) {
			out = append(out, tx)
		}
	}
	return out
}

// NewestFirst returns a copy sorted by date descending. The sort is stable.
func NewestFirst(records []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	return out
}

// Aggregation bundles what the transactions view renders.
type Aggregation struct {
	Totals Totals   `json:"totals"`
	List   ListView `json:"list"`
}

func Aggregate(records []core.Transaction, filter core.Filter) Aggregation {
	return Aggregation{
		Totals: ComputeTotals(records),
		List:   BuildList(records, filter),
	}
}
