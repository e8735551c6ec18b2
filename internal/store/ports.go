package store

import (
	"context"
	"errors"

	"budgetbook/internal/core"
)

var (
	// ErrUnauthorized is returned when the backing store rejects the caller.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream wraps any other store failure.
	ErrUpstream = errors.New("upstream failure")
	// ErrNotSupported is returned by stores lacking an optional action.
	ErrNotSupported = errors.New("action not supported by store")
)

// Ports for outbound adapters.
type (
	// MonthReader returns the raw entries of one month keyed by date.
	MonthReader interface {
		FetchMonth(ctx context.Context, ym core.YearMonth) (core.MonthlyRawStore, error)
	}

	// BudgetReader returns the monthly budget per type.
	BudgetReader interface {
		FetchBudget(ctx context.Context, ym core.YearMonth) (core.BudgetMap, error)
	}

	CategoryReader interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	// TransactionWriter stores transactions on one date and returns how many
	// were written.
	TransactionWriter interface {
		SaveTransactions(ctx context.Context, date core.Date, txs []core.Transaction) (int, error)
	}

	// BudgetWriter replaces the budgets of the given categories.
	BudgetWriter interface {
		SaveBudget(ctx context.Context, categories []core.Category) error
	}

	// Backend is a complete store.
	Backend interface {
		MonthReader
		BudgetReader
		CategoryReader
		TransactionWriter
		BudgetWriter
	}
)
