package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

// fakeSheets serves the subset of the Sheets values API the client uses.
type fakeSheets struct {
	mu       sync.Mutex
	values   map[string][][]any
	appended map[string][][]any
	updated  []string
	renders  []string
	fail     bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, http.StatusInternalServerError)
		return
	}
	path := r.URL.Path
	_, rest, _ := strings.Cut(path, "/values")
	rest = strings.TrimPrefix(rest, "/")
	switch {
	case r.Method == http.MethodGet:
		sheet, _, _ := strings.Cut(rest, "!")
		f.renders = append(f.renders, r.URL.Query().Get("valueRenderOption"))
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rest, "values": f.values[sheet]})
	case strings.HasSuffix(rest, ":append"):
		sheet, _, _ := strings.Cut(strings.TrimSuffix(rest, ":append"), "!")
		var body struct {
			Values [][]any `json:"values"`
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		f.appended[sheet] = append(f.appended[sheet], body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet"})
	case strings.HasSuffix(path, "values:batchUpdate"):
		var body struct {
			Data []struct {
				Range string `json:"range"`
			} `json:"data"`
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		for _, d := range body.Data {
			f.updated = append(f.updated, d.Range)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet"})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, f *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("sheets service: %v", err)
	}
	return newWithService(svc, Config{SpreadsheetID: "sheet"}, nil)
}

func newFake() *fakeSheets {
	return &fakeSheets{
		values: map[string][][]any{
			"Transactions": {
				{"Date", "Type", "Category", "Amount", "Notes"},
				{"2025-03-05", "Expense", "Food", "12.50", "lunch"},
				{"2025-04-01", "Income", "Salary", "1000"},
			},
			"Categories": {
				{"Name", "Type", "MonthlyBudget"},
				{"Food", "Expense", "₹1,200.00"},
				{"Salary", "Income", ""},
			},
		},
		appended: map[string][][]any{},
	}
}

func TestClientReadsMonthAndBudget(t *testing.T) {
	c := newTestClient(t, newFake())
	ctx := context.Background()

	month, err := c.FetchMonth(ctx, core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("fetch month: %v", err)
	}
	if len(month) != 1 || len(month["2025-03-05"]) != 1 {
		t.Fatalf("month = %v", month)
	}

	budget, err := c.FetchBudget(ctx, core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("fetch budget: %v", err)
	}
	if got := budget.Get(core.TypeExpense); !got.Equal(core.MustMoney("1200")) {
		t.Fatalf("expense budget = %s", got)
	}
}

func TestClientReadsNumericAndFormattedAmounts(t *testing.T) {
	f := newFake()
	f.values["Transactions"] = append(f.values["Transactions"],
		[]any{"2025-03-06", "Expense", "Rent", 1200.5},
		[]any{"2025-03-07", "Expense", "Rent", "₹1,200.00"},
		[]any{"2025-03-08", "Expense", "Rent", "1,200"},
	)
	c := newTestClient(t, f)

	month, err := c.FetchMonth(context.Background(), core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("fetch month: %v", err)
	}
	records, report := core.NormalizeMonth(month)
	if len(report.Issues) != 0 {
		t.Fatalf("issues = %+v", report.Issues)
	}
	want := map[string]string{"2025-03-05": "12.50", "2025-03-06": "1200.50", "2025-03-07": "1200.00", "2025-03-08": "1200.00"}
	for _, tx := range records {
		if got := tx.Amount.String(); got != want[tx.Date.String()] {
			t.Fatalf("%s amount = %s, want %s", tx.Date, got, want[tx.Date.String()])
		}
	}
	if len(f.renders) == 0 || f.renders[0] != "UNFORMATTED_VALUE" {
		t.Fatalf("value render option = %v", f.renders)
	}
}

func TestClientSaveTransactions(t *testing.T) {
	f := newFake()
	c := newTestClient(t, f)
	n, err := c.SaveTransactions(context.Background(), core.NewDate(2025, 3, 9), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("3.25"), Notes: "tea"},
	})
	if err != nil || n != 1 {
		t.Fatalf("save = %d, %v", n, err)
	}
	rows := f.appended["Transactions"]
	if len(rows) != 1 || rows[0][0] != "2025-03-09" || rows[0][1] != "Expense" {
		t.Fatalf("appended = %v", rows)
	}

	if _, err := c.SaveTransactions(context.Background(), core.NewDate(2025, 3, 9), []core.Transaction{{Type: core.TypeExpense}}); !errors.Is(err, core.ErrEmptyCategory) {
		t.Fatalf("invalid row: %v", err)
	}
}

func TestClientSaveBudgetUpdatesAndAppends(t *testing.T) {
	f := newFake()
	c := newTestClient(t, f)
	err := c.SaveBudget(context.Background(), []core.Category{
		{Name: "food", Type: core.TypeExpense, MonthlyBudget: core.MustMoney("900")},
		{Name: "Fund", Type: core.TypeSavings, MonthlyBudget: core.MustMoney("100")},
	})
	if err != nil {
		t.Fatalf("save budget: %v", err)
	}
	if len(f.updated) != 1 || f.updated[0] != "Categories!C2" {
		t.Fatalf("updated = %v", f.updated)
	}
	if rows := f.appended["Categories"]; len(rows) != 1 || rows[0][0] != "Fund" {
		t.Fatalf("appended = %v", rows)
	}
}

func TestClientUpstreamFailure(t *testing.T) {
	f := newFake()
	f.fail = true
	c := newTestClient(t, f)
	if _, err := c.FetchMonth(context.Background(), core.YearMonth{Year: 2025, Month: 3}); !errors.Is(err, store.ErrUpstream) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
