package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
	"budgetbook/internal/store/memory"
)

var march = core.YearMonth{Year: 2025, Month: 3}

type countingSource struct {
	*memory.Store
	months    atomic.Int32
	budgets   atomic.Int32
	monthErr  error
	budgetErr error
}

func (c *countingSource) FetchMonth(ctx context.Context, ym core.YearMonth) (core.MonthlyRawStore, error) {
	c.months.Add(1)
	if c.monthErr != nil {
		return nil, c.monthErr
	}
	return c.Store.FetchMonth(ctx, ym)
}

func (c *countingSource) FetchBudget(ctx context.Context, ym core.YearMonth) (core.BudgetMap, error) {
	c.budgets.Add(1)
	if c.budgetErr != nil {
		return nil, c.budgetErr
	}
	return c.Store.FetchBudget(ctx, ym)
}

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New([]core.Category{
		{Name: "Food", Type: core.TypeExpense, MonthlyBudget: core.MustMoney("500")},
	})
	_, err := s.SaveTransactions(context.Background(), core.NewDate(2025, 3, 5), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("120")},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestMonthServiceCachesPerUser(t *testing.T) {
	src := &countingSource{Store: seeded(t)}
	svc := NewMonthService(src, 10, time.Minute, nil)
	ctx := context.Background()

	data, err := svc.Load(ctx, "alice", march)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(data.Records) != 1 || !data.Budget.Get(core.TypeExpense).Equal(core.MustMoney("500")) {
		t.Fatalf("data = %+v", data)
	}
	if _, err := svc.Load(ctx, "alice", march); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if got := src.months.Load(); got != 1 {
		t.Fatalf("month fetched %d times, want 1", got)
	}
	if _, err := svc.Load(ctx, "bob", march); err != nil {
		t.Fatalf("bob: %v", err)
	}
	if got := src.months.Load(); got != 2 {
		t.Fatalf("other user should miss cache, fetched %d", got)
	}

	svc.Invalidate("alice", march)
	if _, err := svc.Load(ctx, "alice", march); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := src.months.Load(); got != 3 {
		t.Fatalf("invalidate did not drop entry, fetched %d", got)
	}
	if n := svc.InvalidateMonth(march); n != 2 {
		t.Fatalf("InvalidateMonth removed %d", n)
	}
}

func TestMonthServiceBudgetFailureDegrades(t *testing.T) {
	src := &countingSource{Store: seeded(t), budgetErr: store.ErrUpstream}
	svc := NewMonthService(src, 10, time.Minute, nil)

	data, err := svc.Load(context.Background(), "u", march)
	if err != nil {
		t.Fatalf("budget failure must not fail the load: %v", err)
	}
	if len(data.Budget) != 0 || len(data.Records) != 1 {
		t.Fatalf("data = %+v", data)
	}
	if _, err := svc.Load(context.Background(), "u", march); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := src.budgets.Load(); got != 2 {
		t.Fatalf("a month with a failed budget must not be cached, budget fetched %d", got)
	}
}

func TestMonthServiceErrors(t *testing.T) {
	cases := []struct {
		name      string
		monthErr  error
		budgetErr error
		want      error
	}{
		{"month unauthorized", store.ErrUnauthorized, nil, store.ErrUnauthorized},
		{"budget unauthorized", nil, store.ErrUnauthorized, store.ErrUnauthorized},
		{"month upstream", store.ErrUpstream, nil, store.ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &countingSource{Store: seeded(t), monthErr: tc.monthErr, budgetErr: tc.budgetErr}
			svc := NewMonthService(src, 10, time.Minute, nil)
			_, err := svc.Load(context.Background(), "u", march)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	svc := NewMonthService(&countingSource{Store: seeded(t)}, 10, time.Minute, nil)
	if _, err := svc.Load(context.Background(), "u", core.YearMonth{Year: 2025, Month: 13}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("invalid month err = %v", err)
	}
}

func TestMonthServiceConcurrentLoads(t *testing.T) {
	src := &countingSource{Store: seeded(t)}
	svc := NewMonthService(src, 10, time.Minute, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Load(context.Background(), "u", march); err != nil {
				t.Errorf("load: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := src.months.Load(); got < 1 || got > 20 {
		t.Fatalf("unexpected fetch count %d", got)
	}
}

func TestTransactionServiceSave(t *testing.T) {
	mem := seeded(t)
	months := NewMonthService(mem, 10, time.Minute, nil)
	svc := NewTransactionService(mem, months, nil)
	ctx := context.Background()

	if _, err := months.Load(ctx, "u", march); err != nil {
		t.Fatalf("load: %v", err)
	}
	n, err := svc.Save(ctx, core.NewDate(2025, 3, 9), []core.Transaction{
		{Type: core.TypeIncome, Category: "Salary", Amount: core.MustMoney("1000")},
	})
	if err != nil || n != 1 {
		t.Fatalf("save = %d, %v", n, err)
	}
	data, err := months.Load(ctx, "u", march)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(data.Records) != 2 {
		t.Fatalf("cache not invalidated after save, records = %d", len(data.Records))
	}

	_, err = svc.Save(ctx, core.NewDate(2025, 3, 9), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("1")},
		{Type: core.TypeExpense, Category: "", Amount: core.MustMoney("1")},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Index != 1 || !errors.Is(err, core.ErrEmptyCategory) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Save(ctx, core.NewDate(2025, 3, 9), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("empty batch err = %v", err)
	}
}

func TestTransactionServiceSaveMonthly(t *testing.T) {
	mem := memory.New(nil)
	svc := NewTransactionService(mem, nil, nil)
	_, err := svc.SaveMonthly(context.Background(), core.YearMonth{Year: 2025, Month: 4}, []core.Transaction{
		{Type: core.TypeSavings, Category: "Fund", Amount: core.MustMoney("200")},
	})
	if err != nil {
		t.Fatalf("save monthly: %v", err)
	}
	dates := mem.Dates()
	if len(dates) != 1 || dates[0] != "2025-04-01" {
		t.Fatalf("dates = %v", dates)
	}
}

func TestTransactionServiceSaveBudget(t *testing.T) {
	mem := seeded(t)
	months := NewMonthService(mem, 10, time.Minute, nil)
	svc := NewTransactionService(mem, months, nil)
	ctx := context.Background()
	if _, err := months.Load(ctx, "u", march); err != nil {
		t.Fatalf("load: %v", err)
	}
	err := svc.SaveBudget(ctx, []core.Category{{Name: "Food", Type: core.TypeExpense, MonthlyBudget: core.MustMoney("800")}})
	if err != nil {
		t.Fatalf("save budget: %v", err)
	}
	data, _ := months.Load(ctx, "u", march)
	if !data.Budget.Get(core.TypeExpense).Equal(core.MustMoney("800")) {
		t.Fatalf("budget = %v", data.Budget)
	}
	cats, err := svc.Categories(ctx)
	if err != nil || len(cats) != 1 {
		t.Fatalf("categories = %v, %v", cats, err)
	}
}

type fakeOutbox struct {
	*memory.Store
	nextID int64
	closed bool
}

func (f *fakeOutbox) Insert(ctx context.Context, date core.Date, txs []core.Transaction) ([]int64, error) {
	if _, err := f.Store.SaveTransactions(ctx, date, txs); err != nil {
		return nil, err
	}
	ids := make([]int64, len(txs))
	for i := range txs {
		f.nextID++
		ids[i] = f.nextID
	}
	return ids, nil
}

func (f *fakeOutbox) Ping(context.Context) error { return nil }

func (f *fakeOutbox) Close() error {
	f.closed = true
	return nil
}

type fakePublisher struct {
	ids    []int64
	months []string
	err    error
}

func (p *fakePublisher) PublishTransactionSync(_ context.Context, id, _ int64, month string) error {
	p.ids = append(p.ids, id)
	p.months = append(p.months, month)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func TestSyncingStorePublishesPerRow(t *testing.T) {
	outbox := &fakeOutbox{Store: memory.New(nil)}
	pub := &fakePublisher{}
	s := NewSyncingStore(outbox, pub, nil)
	n, err := s.SaveTransactions(context.Background(), core.NewDate(2025, 3, 5), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("1")},
		{Type: core.TypeExpense, Category: "Rent", Amount: core.MustMoney("2")},
	})
	if err != nil || n != 2 {
		t.Fatalf("save = %d, %v", n, err)
	}
	if len(pub.ids) != 2 || pub.ids[1] != 2 || pub.months[0] != "2025-03" {
		t.Fatalf("published ids=%v months=%v", pub.ids, pub.months)
	}
	if err := s.Close(); err != nil || !outbox.closed {
		t.Fatalf("close = %v closed=%v", err, outbox.closed)
	}
}

func TestSyncingStorePublishFailureKeepsSave(t *testing.T) {
	outbox := &fakeOutbox{Store: memory.New(nil)}
	s := NewSyncingStore(outbox, &fakePublisher{err: errors.New("broker down")}, nil)
	n, err := s.SaveTransactions(context.Background(), core.NewDate(2025, 3, 5), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("1")},
	})
	if err != nil || n != 1 {
		t.Fatalf("save = %d, %v", n, err)
	}
	if len(outbox.Dates()) != 1 {
		t.Fatalf("row not stored")
	}

	noBroker := NewSyncingStore(&fakeOutbox{Store: memory.New(nil)}, nil, nil)
	if _, err := noBroker.SaveTransactions(context.Background(), core.NewDate(2025, 3, 5), []core.Transaction{
		{Type: core.TypeExpense, Category: "Food", Amount: core.MustMoney("1")},
	}); err != nil {
		t.Fatalf("save without broker: %v", err)
	}
}
