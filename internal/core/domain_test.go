package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-03-14", "2025-03-14", true},
		{" 2025-03-14 ", "2025-03-14", true},
		{"2025-03-14T00:00:00Z", "2025-03-14", true},
		{"2025-03-14T18:30:00.000Z", "2025-03-14", true},
		{"2025-03-14T23:30:00+05:30", "2025-03-14", true},
		{"14/03/2025", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseDate(%q) err=%v, want ok=%v", tc.in, err, tc.ok)
		}
		if tc.ok && got.String() != tc.want {
			t.Fatalf("ParseDate(%q) = %s, want %s", tc.in, got, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("expected ErrInvalidDate, got %v", err)
		}
	}
}

func TestParseTxType(t *testing.T) {
	cases := []struct {
		in    string
		want  TxType
		known bool
		label string
	}{
		{"Expense", TypeExpense, true, "Expense"},
		{"  INCOME ", TypeIncome, true, "Income"},
		{"savings", TypeSavings, true, "Savings"},
		{"Payoff", TypePayoff, true, "Payoff"},
		{"", TypeExpense, true, "Expense"},
		{"Gift", TxType("gift"), false, "Gift"},
	}
	for _, tc := range cases {
		got := ParseTxType(tc.in)
		if got != tc.want {
			t.Fatalf("ParseTxType(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if got.IsKnown() != tc.known {
			t.Fatalf("%q known = %v", got, got.IsKnown())
		}
		if got.Label() != tc.label {
			t.Fatalf("%q label = %q, want %q", got, got.Label(), tc.label)
		}
	}
}

func TestFilter(t *testing.T) {
	f, err := ParseFilter("Income")
	if err != nil || f != FilterFor(TypeIncome) {
		t.Fatalf("ParseFilter(Income) = %q, %v", f, err)
	}
	if _, err := ParseFilter("gift"); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	all, _ := ParseFilter("")
	if all != FilterAll {
		t.Fatalf("empty filter should be all, got %q", all)
	}
	if !FilterAll.Match(TxType("gift")) {
		t.Fatalf("all must match unknown types")
	}
	if f.Match(TxType("gift")) || f.Match(TypeExpense) || !f.Match(TypeIncome) {
		t.Fatalf("income filter matched wrong types")
	}
}

func TestYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2025-12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next := ym.Add(1); next != (YearMonth{Year: 2026, Month: 1}) {
		t.Fatalf("Add(1) = %v", next)
	}
	if prev := ym.Add(-12); prev.String() != "2024-12" {
		t.Fatalf("Add(-12) = %v", prev)
	}
	if ym.FirstDay().String() != "2025-12-01" {
		t.Fatalf("FirstDay = %s", ym.FirstDay())
	}
	if !ym.Contains(NewDate(2025, 12, 31)) || ym.Contains(NewDate(2026, 1, 1)) {
		t.Fatalf("Contains mismatch")
	}
	if _, err := NewYearMonth(2025, 13); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:     NewDate(2025, 1, 1),
		Type:     TypeExpense,
		Category: "Food",
		Amount:   MustMoney("12.50"),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Type: TypeExpense, Category: "Food"},
		{Date: NewDate(2025, 1, 1), Type: TxType("gift"), Category: "Food"},
		{Date: NewDate(2025, 1, 1), Type: TypeIncome, Category: "  "},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestBudgetFromCategories(t *testing.T) {
	cats := []Category{
		{Name: "Food", Type: TypeExpense, MonthlyBudget: MustMoney("300")},
		{Name: "Rent", Type: TypeExpense, MonthlyBudget: MustMoney("1200.50")},
		{Name: "Salary", Type: TypeIncome, MonthlyBudget: MustMoney("5000")},
		{Name: "Misc", Type: TypeSavings},
		{Name: "Gifts", Type: TxType("gift"), MonthlyBudget: MustMoney("10")},
	}
	b := BudgetFromCategories(cats)
	if got := b.Get(TypeExpense).String(); got != "1500.50" {
		t.Fatalf("expense budget = %s", got)
	}
	if got := b.Get(TypeIncome).String(); got != "5000.00" {
		t.Fatalf("income budget = %s", got)
	}
	if !b.Get(TypeSavings).IsZero() || !b.Get(TypePayoff).IsZero() {
		t.Fatalf("unset budgets must be zero")
	}
	if _, ok := b[TxType("gift")]; ok {
		t.Fatalf("unknown types must not carry a budget")
	}
	if cats[0].YearlyBudget().String() != "3600.00" {
		t.Fatalf("yearly budget = %s", cats[0].YearlyBudget())
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct{ D Date }{NewDate(2025, 3, 5)})
	if err != nil || string(b) != `{"D":"2025-03-05"}` {
		t.Fatalf("marshal = %s, %v", b, err)
	}
	var out struct{ D Date }
	if err := json.Unmarshal([]byte(`{"D":"2025-03-05T10:00:00Z"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.D.Equal(NewDate(2025, 3, 5).Time) {
		t.Fatalf("date = %v", out.D)
	}
	if err := json.Unmarshal([]byte(`{"D":12}`), &out); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("err = %v", err)
	}
}
