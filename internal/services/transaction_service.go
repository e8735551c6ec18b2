package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

// ErrEmptyBatch is returned when a save carries no transactions.
var ErrEmptyBatch = errors.New("no transactions to save")

// ValidationError names the transaction in a batch that failed validation.
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("transaction %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Writer is the write side of a backend.
type Writer interface {
	store.TransactionWriter
	store.BudgetWriter
	store.CategoryReader
}

// TransactionService validates writes, sends them to the backend and drops
// the cached months they touch.
type TransactionService struct {
	writer Writer
	months *MonthService
	logger *slog.Logger
}

func NewTransactionService(writer Writer, months *MonthService, logger *slog.Logger) *TransactionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionService{writer: writer, months: months, logger: logger}
}

// Save stores every transaction on date. The batch is rejected as a whole
// when any transaction is invalid.
func (s *TransactionService) Save(ctx context.Context, date core.Date, txs []core.Transaction) (int, error) {
	if err := date.Validate(); err != nil {
		return 0, err
	}
	if len(txs) == 0 {
		return 0, ErrEmptyBatch
	}
	batch := make([]core.Transaction, len(txs))
	for i, tx := range txs {
		tx.Date = date
		if err := tx.Validate(); err != nil {
			return 0, &ValidationError{Index: i, Err: err}
		}
		batch[i] = tx
	}

	n, err := s.writer.SaveTransactions(ctx, date, batch)
	if err != nil {
		return 0, fmt.Errorf("save transactions: %w", err)
	}
	if s.months != nil {
		s.months.InvalidateMonth(date.YearMonth())
	}
	s.logger.InfoContext(ctx, "Transactions saved", "date", date.String(), "count", n)
	return n, nil
}

// SaveMonthly stores a monthly entry on the first day of ym.
func (s *TransactionService) SaveMonthly(ctx context.Context, ym core.YearMonth, txs []core.Transaction) (int, error) {
	if err := ym.Validate(); err != nil {
		return 0, err
	}
	return s.Save(ctx, ym.FirstDay(), txs)
}

// Categories lists the known categories with their budgets.
func (s *TransactionService) Categories(ctx context.Context) ([]core.Category, error) {
	cats, err := s.writer.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// SaveBudget replaces the monthly budgets of the given categories.
func (s *TransactionService) SaveBudget(ctx context.Context, cats []core.Category) error {
	if len(cats) == 0 {
		return ErrEmptyBatch
	}
	for i, c := range cats {
		if err := c.Validate(); err != nil {
			return &ValidationError{Index: i, Err: err}
		}
	}
	if err := s.writer.SaveBudget(ctx, cats); err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	if s.months != nil {
		s.months.InvalidateAll()
	}
	s.logger.InfoContext(ctx, "Budget saved", "categories", len(cats))
	return nil
}
