package ledger

import (
	"github.com/shopspring/decimal"

	"budgetbook/internal/core"
)

type HintStatus string

const (
	HintGood HintStatus = "good"
	HintBad  HintStatus = "bad"
)

var hundred = decimal.NewFromInt(100)

// Hint compares a type's total with its monthly budget. A hidden hint means
// no budget is set; it is not the same as 0%.
type Hint struct {
	Type       core.TxType `json:"type"`
	Visible    bool        `json:"visible"`
	Percentage int64       `json:"percentage"`
	Status     HintStatus  `json:"status,omitempty"`
	Actual     core.Money  `json:"actual"`
	Budget     core.Money  `json:"budget"`
}

// Hints are indexed by known type.
type Hints map[core.TxType]Hint

// BudgetHints computes the hint of each known type. Percentages round half
// away from zero. Expense and payoff are bad above 100%; income and
// savings are bad below it.
func BudgetHints(totals Totals, budget core.BudgetMap) Hints {
	hints := make(Hints, len(core.KnownTypes))
	for _, t := range core.KnownTypes {
		hints[t] = hintFor(t, totals.Get(t), budget.Get(t))
	}
	return hints
}

func hintFor(t core.TxType, actual, budget core.Money) Hint {
	h := Hint{Type: t, Actual: actual, Budget: budget}
	if !budget.IsPositive() {
		return h
	}
	pct := actual.Decimal().Mul(hundred).Div(budget.Decimal()).Round(0)
	h.Visible = true
	h.Percentage = pct.IntPart()
	h.Status = HintGood
	if t.Inverse() {
		if h.Percentage < 100 {
			h.Status = HintBad
		}
	} else if h.Percentage > 100 {
		h.Status = HintBad
	}
	return h
}
