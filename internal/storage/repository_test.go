package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"budgetbook/internal/core"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "budgetbook.db"), nil)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run must be a no-op: %v", err)
	}
	v, dirty, err := SchemaVersion(path)
	if err != nil || dirty || v != 2 {
		t.Fatalf("version = %d dirty=%v err=%v", v, dirty, err)
	}
}

func TestInsertAndFetchMonth(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	ids, err := repo.Insert(ctx, core.NewDate(2025, 3, 5), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("250.5")},
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("49.5"), Notes: "snack"},
	})
	if err != nil || len(ids) != 2 {
		t.Fatalf("insert = %v, %v", ids, err)
	}
	if _, err := repo.SaveTransactions(ctx, core.NewDate(2025, 4, 1), []core.Transaction{{Type: core.TypeIncome, Category: "Salary", Amount: core.MustMoney("1000")}}); err != nil {
		t.Fatalf("save april: %v", err)
	}

	month, err := repo.FetchMonth(ctx, core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	records, report := core.NormalizeMonth(month)
	if len(records) != 2 || report.Dropped != 0 {
		t.Fatalf("records = %v", records)
	}
	if records[1].Notes != "snack" || records[0].Amount.String() != "250.50" {
		t.Fatalf("records = %+v", records)
	}

	st, err := repo.GetTransaction(ctx, ids[0])
	if err != nil || st.SyncStatus != SyncPending || st.Transaction.Category != "Food" {
		t.Fatalf("get = %+v, %v", st, err)
	}
	if _, err := repo.GetTransaction(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertRejectsInvalidBatch(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	_, err := repo.Insert(ctx, core.NewDate(2025, 3, 5), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food"},
		{Type: core.TypeExpense, Category: ""},
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	month, _ := repo.FetchMonth(ctx, core.YearMonth{Year: 2025, Month: 3})
	if len(month) != 0 {
		t.Fatalf("nothing should be stored: %v", month)
	}
}

func TestSyncLifecycle(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	ids, _ := repo.Insert(ctx, core.NewDate(2025, 3, 5), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food"},
		{Type: core.TypeExpense, Category: "Rent"},
	})

	pending, err := repo.GetPendingSync(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending = %v, %v", pending, err)
	}

	if err := repo.MarkSynced(ctx, ids[0]); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if err := repo.MarkSyncError(ctx, ids[1], 2); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	if st, _ := repo.GetTransaction(ctx, ids[1]); st.SyncStatus != SyncPending || st.SyncAttempts != 1 {
		t.Fatalf("first failure should stay pending: %+v", st)
	}
	_ = repo.MarkSyncError(ctx, ids[1], 2)
	counts, err := repo.SyncCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[SyncDone] != 1 || counts[SyncError] != 1 || counts[SyncPending] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestBudgetUpsert(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	err := repo.SaveBudget(ctx, []core.Category{
		{Name: "food", Type: core.TypeExpense, MonthlyBudget: core.MustMoney("300")},
		{Name: "Gym", Type: core.TypeExpense, MonthlyBudget: core.MustMoney("50")},
	})
	if err != nil {
		t.Fatalf("save budget: %v", err)
	}
	b, err := repo.FetchBudget(ctx, core.YearMonth{Year: 2025, Month: 3})
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if b.Get(core.TypeExpense).String() != "350.00" {
		t.Fatalf("expense budget = %s", b.Get(core.TypeExpense))
	}
	cats, _ := repo.ListCategories(ctx)
	foods := 0
	for _, c := range cats {
		if c.Name == "Food" || c.Name == "food" {
			foods++
		}
	}
	if foods != 1 {
		t.Fatalf("category names must be case-insensitive: %v", cats)
	}
}
