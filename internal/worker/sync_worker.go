package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/storage"
	"budgetbook/internal/store"
)

// Outbox is the local side of the sync: rows waiting to be mirrored.
type Outbox interface {
	GetTransaction(ctx context.Context, id int64) (storage.StoredTransaction, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64, maxAttempts int) error
}

// SyncWorker mirrors transactions saved in SQLite to the remote store.
// A row is pushed by at most one goroutine at a time, so the AMQP consumer
// and the periodic sweep never append the same row twice.
type SyncWorker struct {
	outbox      Outbox
	remote      store.TransactionWriter
	batchSize   int
	maxAttempts int
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func NewSyncWorker(outbox Outbox, remote store.TransactionWriter, batchSize, maxAttempts int, logger *slog.Logger) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWorker{
		outbox:      outbox,
		remote:      remote,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger,
		inFlight:    make(map[int64]struct{}),
	}
}

func (w *SyncWorker) claim(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *SyncWorker) release(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}

// syncResult says what syncOne did with a row.
type syncResult int

const (
	syncSkipped syncResult = iota
	syncPushed
)

// syncOne claims id, re-reads the row and pushes it if it is still pending.
// The status is read after the claim, so a row finished by another caller
// in the meantime is skipped.
func (w *SyncWorker) syncOne(ctx context.Context, id int64) (syncResult, error) {
	if !w.claim(id) {
		w.logger.DebugContext(ctx, "Transaction already being synced, skipping", "id", id)
		return syncSkipped, nil
	}
	defer w.release(id)

	st, err := w.outbox.GetTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.WarnContext(ctx, "Sync requested for unknown transaction", "id", id)
		return syncSkipped, nil
	}
	if err != nil {
		return syncSkipped, fmt.Errorf("get transaction from storage: %w", err)
	}
	if st.SyncStatus != storage.SyncPending {
		w.logger.DebugContext(ctx, "Transaction not pending, skipping", "id", st.ID, "status", st.SyncStatus)
		return syncSkipped, nil
	}
	if err := w.sync(ctx, st); err != nil {
		return syncSkipped, err
	}
	return syncPushed, nil
}

// HandleSyncMessage syncs the row named by one AMQP message. Rows already
// synced, or given up on, are acknowledged without work.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message", "id", msg.ID, "version", msg.Version)
	_, err := w.syncOne(ctx, msg.ID)
	return err
}

func (w *SyncWorker) sync(ctx context.Context, st storage.StoredTransaction) error {
	tx := st.Transaction
	if _, err := w.remote.SaveTransactions(ctx, tx.Date, []core.Transaction{tx}); err != nil {
		if merr := w.outbox.MarkSyncError(ctx, st.ID, w.maxAttempts); merr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", "id", st.ID, "error", merr)
		}
		return fmt.Errorf("sync transaction %d: %w", st.ID, err)
	}
	if err := w.outbox.MarkSynced(ctx, st.ID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	w.logger.InfoContext(ctx, "Transaction synced", "id", st.ID, "date", tx.Date.String(), "category", tx.Category)
	return nil
}

// ProcessPending syncs one batch of pending rows. It covers messages that
// were lost or published while the worker was down.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep when the worker starts.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync check completed", "synced", synced, "failed", failed)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (int, int, error) {
	pending, err := w.outbox.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending transactions: %w", err)
	}
	var synced, failed int
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		res, err := w.syncOne(ctx, p.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync pending transaction", "id", p.ID, "error", err)
			failed++
			continue
		}
		if res == syncPushed {
			synced++
		}
	}
	return synced, failed, nil
}

// RunPeriodic sweeps pending rows every interval until ctx ends.
func (w *SyncWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if synced, failed, err := w.ProcessPending(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic sync failed", "error", err)
			} else if synced+failed > 0 {
				w.logger.InfoContext(ctx, "Periodic sync completed", "synced", synced, "failed", failed)
			}
		}
	}
}
