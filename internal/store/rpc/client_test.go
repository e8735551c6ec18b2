package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

// fakeEndpoint records requests and answers per action.
type fakeEndpoint struct {
	mu        sync.Mutex
	requests  []map[string]any
	responses map[string]string
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if ct := r.Header.Get("Content-Type"); ct != "text/plain;charset=utf-8" {
		http.Error(w, "bad content type "+ct, http.StatusBadRequest)
		return
	}
	if req["idToken"] != "tok" {
		_, _ = io.WriteString(w, `{"success":false,"error":"UNAUTHORIZED"}`)
		return
	}
	resp, ok := f.responses[req["action"].(string)]
	if !ok {
		_, _ = io.WriteString(w, `{"success":false,"message":"Unknown action"}`)
		return
	}
	_, _ = io.WriteString(w, resp)
}

func (f *fakeEndpoint) last() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newClient(t *testing.T, f *fakeEndpoint) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithTokenSource(StaticToken("tok")))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestFetchMonthByDate(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{
		actionGetMonth: `{"success":true,"expensesByDate":{"2025-03-05":[{"Type":"Expense","Category":"Food","Amount":250.5},{"type":"Expense","category":"Food","amount":"49.5"}]}}`,
	}}
	c := newClient(t, f)
	month, err := c.FetchMonth(context.Background(), core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := f.last(); got["year"] != float64(2025) || got["month"] != float64(3) || got["action"] != actionGetMonth {
		t.Fatalf("request = %v", got)
	}
	if _, ok := month["2025-03-05"][0]["Amount"].(json.Number); !ok {
		t.Fatalf("amounts must decode as json.Number, got %T", month["2025-03-05"][0]["Amount"])
	}
	records, report := core.NormalizeMonth(month)
	if len(records) != 2 || len(report.Issues) != 0 {
		t.Fatalf("records = %v, report = %+v", records, report)
	}
}

func TestFetchMonthSkipsNullEntries(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{
		actionGetMonth: `{"success":true,"expensesByDate":{"2025-03-05":[null,{"type":"Expense","category":"Food","amount":"4"},null]}}`,
	}}
	month, err := newClient(t, f).FetchMonth(context.Background(), core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	records, report := core.NormalizeMonth(month)
	if len(records) != 1 || records[0].Category != "Food" || len(report.Issues) != 0 {
		t.Fatalf("records = %v, report = %+v", records, report)
	}
}

func TestFetchMonthFlat(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{
		actionGetMonth: `{"success":true,"expenses":[{"date":"2025-03-01","amount":"1"},{"Date":"2025-03-01T00:00:00.000Z","amount":"2"},{"date":"2025-03-09","amount":"3"}]}`,
	}}
	month, err := newClient(t, f).FetchMonth(context.Background(), core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(month["2025-03-01"]) != 2 || len(month["2025-03-09"]) != 1 {
		t.Fatalf("month = %v", month)
	}
}

func TestUnauthorized(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{actionGetMonth: `{"success":true}`}}
	c := newClient(t, f)
	c.tokens = StaticToken("wrong")
	_, err := c.FetchMonth(context.Background(), core.YearMonth{Year: 2025, Month: 3})
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	ctx := WithIDToken(context.Background(), "tok")
	if _, err := c.FetchMonth(ctx, core.YearMonth{Year: 2025, Month: 3}); err != nil {
		t.Fatalf("context token should win: %v", err)
	}

	bare, _ := New("http://unused.invalid")
	if _, err := bare.FetchMonth(context.Background(), core.YearMonth{Year: 2025, Month: 3}); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("missing token should be unauthorized, got %v", err)
	}
}

func TestUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	c, _ := New(srv.URL, WithTokenSource(StaticToken("tok")))
	_, err := c.FetchMonth(context.Background(), core.YearMonth{Year: 2025, Month: 3})
	if !errors.Is(err, store.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestFetchBudget(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{
		actionGetBudget: `{"success":true,"budget":{"expense":1500,"income":"5000","savings":0,"payoff":null,"gift":5}}`,
	}}
	b, err := newClient(t, f).FetchBudget(context.Background(), core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if b.Get(core.TypeExpense).String() != "1500.00" || b.Get(core.TypeIncome).String() != "5000.00" {
		t.Fatalf("budget = %v", b)
	}
	if _, ok := b[core.TypePayoff]; ok {
		t.Fatalf("null budget must be absent")
	}
	if _, ok := b[core.TxType("gift")]; ok {
		t.Fatalf("unknown type must be ignored")
	}
}

func TestFetchBudgetFallsBackToCategories(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{
		actionGetCategories: `{"success":true,"categories":[{"name":"Food","type":"Expense","budget":300},{"name":"Rent","type":"Expense","budget":"1200"},{"name":"Salary","type":"Income","budget":0}]}`,
	}}
	b, err := newClient(t, f).FetchBudget(context.Background(), core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if b.Get(core.TypeExpense).String() != "1500.00" || !b.Get(core.TypeIncome).IsZero() {
		t.Fatalf("budget = %v", b)
	}
}

func TestSaveTransactions(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{actionSaveExpenses: `{"success":true,"message":"Saved 2"}`}}
	c := newClient(t, f)
	n, err := c.SaveTransactions(context.Background(), core.NewDate(2025, 3, 1), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("12.5"), Notes: "lunch"},
		{Type: core.TypeSavings, Category: "Fund", Amount: core.MustMoney("100")},
	})
	if err != nil || n != 2 {
		t.Fatalf("save = %d, %v", n, err)
	}
	req := f.last()
	if req["date"] != "2025-03-01" {
		t.Fatalf("date = %v", req["date"])
	}
	expenses := req["expenses"].([]any)
	first := expenses[0].(map[string]any)
	if first["type"] != "Expense" || first["amount"] != 12.5 || first["notes"] != "lunch" {
		t.Fatalf("first expense = %v", first)
	}
}

func TestSaveBudgetSendsYearly(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{actionSaveBudget: `{"success":true}`}}
	c := newClient(t, f)
	err := c.SaveBudget(context.Background(), []core.Category{{Name: "Food", Type: core.TypeExpense, MonthlyBudget: core.MustMoney("300")}})
	if err != nil {
		t.Fatalf("save budget: %v", err)
	}
	b := f.last()["budgets"].([]any)[0].(map[string]any)
	if b["category"] != "Food" || b["monthlyBudget"] != float64(300) || b["yearlyBudget"] != float64(3600) {
		t.Fatalf("budget payload = %v", b)
	}
}

func TestActionErrorIsUpstream(t *testing.T) {
	f := &fakeEndpoint{responses: map[string]string{actionSaveExpenses: `{"success":false,"message":"Sheet locked"}`}}
	_, err := newClient(t, f).SaveTransactions(context.Background(), core.NewDate(2025, 3, 1), []core.Transaction{{Type: core.TypeExpense, Category: "Food"}})
	var actionErr *ActionError
	if !errors.As(err, &actionErr) || actionErr.Message != "Sheet locked" || !errors.Is(err, store.ErrUpstream) {
		t.Fatalf("unexpected error %v", err)
	}
}
