package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

var (
	_ store.Backend = (*SQLiteRepository)(nil)

	ErrNotFound = errors.New("transaction not found")
)

// SQLiteRepository is the local store. Every saved transaction starts as
// pending and is mirrored to the remote store by the sync worker.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// StoredTransaction is a transaction row with its sync bookkeeping.
type StoredTransaction struct {
	ID           int64
	Transaction  core.Transaction
	SyncStatus   string
	SyncAttempts int
	Version      int64
	CreatedAt    time.Time
}

// PendingSync is the minimal data needed for a sync queue message.
type PendingSync struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FetchMonth returns the month's rows as raw entries keyed by date, in
// insertion order within each date.
func (r *SQLiteRepository) FetchMonth(ctx context.Context, ym core.YearMonth) (core.MonthlyRawStore, error) {
	from := ym.FirstDay().String()
	to := ym.Add(1).FirstDay().String()
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, type, category, amount, notes
		FROM transactions
		WHERE date >= ? AND date < ?
		ORDER BY date, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query month %s: %w", ym, err)
	}
	defer rows.Close()

	out := make(core.MonthlyRawStore)
	for rows.Next() {
		var date, typ, category, amount, notes string
		if err := rows.Scan(&date, &typ, &category, &amount, &notes); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out[date] = append(out[date], core.RawEntry{
			"type":     typ,
			"category": category,
			"amount":   amount,
			"notes":    notes,
		})
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, type, monthly_budget FROM categories ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var name, typ, budget string
		if err := rows.Scan(&name, &typ, &budget); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cat := core.Category{Name: name, Type: core.ParseTxType(typ)}
		if m, err := core.ParseMoney(budget); err == nil {
			cat.MonthlyBudget = m
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) FetchBudget(ctx context.Context, _ core.YearMonth) (core.BudgetMap, error) {
	cats, err := r.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return core.BudgetFromCategories(cats), nil
}

func (r *SQLiteRepository) SaveTransactions(ctx context.Context, date core.Date, txs []core.Transaction) (int, error) {
	ids, err := r.Insert(ctx, date, txs)
	return len(ids), err
}

// Insert stores txs on date in one database transaction and returns the
// new row IDs.
func (r *SQLiteRepository) Insert(ctx context.Context, date core.Date, txs []core.Transaction) ([]int64, error) {
	for _, tx := range txs {
		tx.Date = date
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	ids := make([]int64, 0, len(txs))
	for _, tx := range txs {
		res, err := dbtx.ExecContext(ctx, `
			INSERT INTO transactions (date, type, category, amount, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			date.String(), string(tx.Type), tx.Category, tx.Amount.Decimal().String(), tx.Notes, now)
		if err != nil {
			return nil, fmt.Errorf("insert transaction: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := dbtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.logger.InfoContext(ctx, "Transactions saved to SQLite", "date", date.String(), "count", len(ids))
	return ids, nil
}

// SaveBudget upserts the budget of every category.
func (r *SQLiteRepository) SaveBudget(ctx context.Context, categories []core.Category) error {
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range categories {
		_, err := dbtx.ExecContext(ctx, `
			INSERT INTO categories (name, type, monthly_budget, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (name, type) DO UPDATE SET
				monthly_budget = excluded.monthly_budget,
				updated_at = excluded.updated_at`,
			c.Name, string(c.Type), c.MonthlyBudget.Decimal().String(), now)
		if err != nil {
			return fmt.Errorf("upsert category %s: %w", c.Name, err)
		}
	}
	return dbtx.Commit()
}

// GetTransaction returns one row by ID.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (StoredTransaction, error) {
	var (
		st                                          StoredTransaction
		date, typ, category, amount, notes, created string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, date, type, category, amount, notes, sync_status, sync_attempts, version, created_at
		FROM transactions WHERE id = ?`, id).
		Scan(&st.ID, &date, &typ, &category, &amount, &notes, &st.SyncStatus, &st.SyncAttempts, &st.Version, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredTransaction{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("transaction %d: %w", id, err)
	}
	m, err := core.ParseMoney(amount)
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("transaction %d: %w", id, err)
	}
	st.Transaction = core.Transaction{Date: d, Type: core.TxType(typ), Category: category, Amount: m, Notes: notes}
	st.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return st, nil
}

// GetPendingSync returns rows not yet mirrored, oldest first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version, created_at FROM transactions
		WHERE sync_status = ?
		ORDER BY id
		LIMIT ?`, SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	defer rows.Close()

	var out []PendingSync
	for rows.Next() {
		var (
			p       PendingSync
			created string
		)
		if err := rows.Scan(&p.ID, &p.Version, &created); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks a row as mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET sync_status = ?, synced_at = ?, sync_attempts = sync_attempts + 1
		WHERE id = ?`, SyncDone, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	r.logger.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError records a failed attempt. Rows that failed fewer than
// maxAttempts times go back to pending.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET sync_attempts = sync_attempts + 1,
		    sync_status = CASE WHEN sync_attempts + 1 >= ? THEN ? ELSE ? END
		WHERE id = ?`, maxAttempts, SyncError, SyncPending, id)
	if err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	r.logger.WarnContext(ctx, "Transaction sync attempt failed", "id", id)
	return nil
}

// SyncCounts returns how many rows are in each sync state.
func (r *SQLiteRepository) SyncCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM transactions GROUP BY sync_status`)
	if err != nil {
		return nil, fmt.Errorf("sync counts: %w", err)
	}
	defer rows.Close()
	out := map[string]int{SyncPending: 0, SyncDone: 0, SyncError: 0}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
