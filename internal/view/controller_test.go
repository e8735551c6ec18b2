package view

import (
	"sync"
	"testing"

	"budgetbook/internal/core"
	"budgetbook/internal/ledger"
)

func march(t *testing.T) MonthData {
	t.Helper()
	records, report := core.NormalizeMonth(core.MonthlyRawStore{
		"2025-03-05": {
			{"type": "Expense", "category": "Food", "amount": "250.5"},
			{"type": "Expense", "category": "Food", "amount": "49.5"},
		},
		"2025-03-01": {{"type": "Income", "category": "Salary", "amount": "1000"}},
	})
	return MonthData{
		Month:   core.YearMonth{Year: 2025, Month: 3},
		Records: records,
		Budget:  core.BudgetMap{core.TypeExpense: core.MustMoney("250")},
		Report:  report,
	}
}

func loaded(t *testing.T) *Controller {
	t.Helper()
	c := NewController(nil)
	if _, ok := c.Load(c.BeginLoad(), march(t)); !ok {
		t.Fatalf("initial load discarded")
	}
	return c
}

func TestInitialState(t *testing.T) {
	c := NewController(nil)
	s := c.State()
	if s.SelectedType != core.FilterAll || s.Mode != ModeTransactions || len(s.Expanded) != 0 {
		t.Fatalf("initial state = %+v", s)
	}
	f := c.Current()
	if f.Loaded || f.List == nil || f.List.Empty != ledger.EmptyNoData {
		t.Fatalf("unloaded frame = %+v", f)
	}
}

func TestSelectTypeTogglesBackToAll(t *testing.T) {
	c := loaded(t)
	expense := core.FilterFor(core.TypeExpense)

	f := c.SelectType(expense)
	if f.Selected != expense || f.List.Count != 2 {
		t.Fatalf("after first select: %+v", f)
	}
	f = c.SelectType(expense)
	if f.Selected != core.FilterAll || f.List.Count != 3 {
		t.Fatalf("after second select: %+v", f)
	}
	f = c.SelectType(core.FilterFor(core.TypePayoff))
	if f.List.Empty != ledger.EmptyNoMatch {
		t.Fatalf("payoff filter should be a no-match: %+v", f.List)
	}
	if !f.Totals.Expense.Equal(core.MustMoney("300")) {
		t.Fatalf("totals must ignore the filter: %+v", f.Totals)
	}
}

func TestSetViewModeKeepsSelection(t *testing.T) {
	c := loaded(t)
	c.SelectType(core.FilterFor(core.TypeExpense))

	f := c.SetViewMode(ModeSummary)
	if f.Selected != core.FilterFor(core.TypeExpense) {
		t.Fatalf("mode change touched selection: %q", f.Selected)
	}
	if f.List != nil || len(f.Summary) != 1 || f.Summary[0].Key.Category != "Food" {
		t.Fatalf("summary frame = %+v", f)
	}

	f = c.SetViewMode(ModeTransactions)
	if f.List == nil || f.Summary != nil {
		t.Fatalf("transactions frame = %+v", f)
	}
}

func TestToggleExpandOnlyInSummary(t *testing.T) {
	c := loaded(t)
	key := ledger.CategoryKey{Category: "Food", Type: core.TypeExpense}

	c.ToggleExpand(key)
	if len(c.State().Expanded) != 0 {
		t.Fatalf("expand outside summary mode must be ignored")
	}

	c.SetViewMode(ModeSummary)
	f := c.ToggleExpand(key)
	var food ledger.CategorySummary
	for _, row := range f.Summary {
		if row.Key == key {
			food = row
		}
	}
	if !food.Expanded || len(f.Expanded) != 1 || f.Expanded[0] != "Food|expense" {
		t.Fatalf("expanded frame = %+v", f)
	}

	f = c.ToggleExpand(key)
	for _, row := range f.Summary {
		if row.Expanded {
			t.Fatalf("row still expanded after second toggle: %+v", row)
		}
	}
}

func TestMonthNavigationKeepsSelection(t *testing.T) {
	c := loaded(t)
	key := ledger.CategoryKey{Category: "Food", Type: core.TypeExpense}
	c.SetViewMode(ModeSummary)
	c.SelectType(core.FilterFor(core.TypeExpense))
	c.ToggleExpand(key)

	april := MonthData{Month: core.YearMonth{Year: 2025, Month: 4}}
	f, ok := c.Load(c.BeginLoad(), april)
	if !ok {
		t.Fatalf("load discarded")
	}
	s := c.State()
	if s.SelectedType != core.FilterFor(core.TypeExpense) || s.Mode != ModeSummary || !s.Expanded[key] {
		t.Fatalf("navigation reset selection: %+v", s)
	}
	if f.Month != "2025-04" || len(f.Summary) != 0 {
		t.Fatalf("april frame = %+v", f)
	}
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	c := NewController(nil)
	first := c.BeginLoad()
	second := c.BeginLoad()

	if _, ok := c.Load(second, march(t)); !ok {
		t.Fatalf("current load discarded")
	}
	if _, ok := c.Load(first, MonthData{Month: core.YearMonth{Year: 2024, Month: 1}}); ok {
		t.Fatalf("stale load applied")
	}
	if ym, _ := c.Month(); ym.Month != 3 {
		t.Fatalf("month = %v", ym)
	}
}

func TestResetAndCollapseAll(t *testing.T) {
	c := loaded(t)
	key := ledger.CategoryKey{Category: "Salary", Type: core.TypeIncome}
	c.SetViewMode(ModeSummary)
	c.ToggleExpand(key)
	c.SelectType(core.FilterFor(core.TypeIncome))

	c.CollapseAll()
	if s := c.State(); len(s.Expanded) != 0 || s.Mode != ModeSummary {
		t.Fatalf("collapse all = %+v", s)
	}

	f := c.Reset()
	if f.Mode != ModeTransactions || f.Selected != core.FilterAll || !f.Loaded {
		t.Fatalf("reset frame = %+v", f)
	}
}

func TestSummaryFrameEmptyReason(t *testing.T) {
	c := loaded(t)
	c.SetViewMode(ModeSummary)
	if f := c.Current(); f.Empty != ledger.EmptyNone || len(f.Summary) == 0 {
		t.Fatalf("populated summary = %+v", f)
	}

	f := c.SelectType(core.FilterFor(core.TypeSavings))
	if f.Empty != ledger.EmptyNoMatch || len(f.Summary) != 0 || f.List != nil {
		t.Fatalf("filtered out summary = %+v", f)
	}

	f, ok := c.Load(c.BeginLoad(), MonthData{Month: core.YearMonth{Year: 2025, Month: 4}})
	if !ok {
		t.Fatalf("load discarded")
	}
	if f.Empty != ledger.EmptyNoData || f.Mode != ModeSummary {
		t.Fatalf("empty month summary = %+v", f)
	}
}

func TestFrameHints(t *testing.T) {
	f := loaded(t).Current()
	h := f.Hints[core.TypeExpense]
	if !h.Visible || h.Percentage != 120 || h.Status != ledger.HintBad {
		t.Fatalf("expense hint = %+v", h)
	}
	if f.Hints[core.TypeIncome].Visible {
		t.Fatalf("income has no budget and must be hidden")
	}
}

func TestControllerConcurrentUse(t *testing.T) {
	c := loaded(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.SetViewMode(ModeSummary)
			} else {
				c.SelectType(core.FilterFor(core.TypeIncome))
			}
			c.Current()
		}(i)
	}
	wg.Wait()
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Summary "); err != nil || m != ModeSummary {
		t.Fatalf("ParseMode = %q, %v", m, err)
	}
	if _, err := ParseMode("calendar"); err == nil {
		t.Fatalf("expected error")
	}
}
