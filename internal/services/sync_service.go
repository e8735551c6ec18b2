package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

// Outbox stores transactions locally and returns their row ids.
type Outbox interface {
	store.Backend
	Insert(ctx context.Context, date core.Date, txs []core.Transaction) ([]int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// SyncPublisher announces stored rows to the sync worker.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, id, version int64, month string) error
	Close() error
}

// SyncingStore is a Backend that saves into the local outbox and then
// publishes one sync message per stored row. Publishing never fails a save:
// the worker's periodic sweep picks up anything left pending.
type SyncingStore struct {
	Outbox
	publisher SyncPublisher
	logger    *slog.Logger
}

var _ store.Backend = (*SyncingStore)(nil)

func NewSyncingStore(outbox Outbox, publisher SyncPublisher, logger *slog.Logger) *SyncingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncingStore{Outbox: outbox, publisher: publisher, logger: logger}
}

func (s *SyncingStore) SaveTransactions(ctx context.Context, date core.Date, txs []core.Transaction) (int, error) {
	ids, err := s.Outbox.Insert(ctx, date, txs)
	if err != nil {
		return 0, fmt.Errorf("save locally: %w", err)
	}
	month := date.YearMonth().String()
	for _, id := range ids {
		if err := s.publish(ctx, id, month); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
		}
	}
	return len(ids), nil
}

func (s *SyncingStore) publish(ctx context.Context, id int64, month string) error {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, skipping sync message", "id", id)
		return nil
	}
	return s.publisher.PublishTransactionSync(ctx, id, 1, month)
}

// Close closes both the outbox and the publisher.
func (s *SyncingStore) Close() error {
	var errs []error
	if err := s.Outbox.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
