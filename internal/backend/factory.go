// Package backend builds the store selected by DATA_BACKEND.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"golang.org/x/oauth2"

	"budgetbook/internal/amqp"
	"budgetbook/internal/auth"
	"budgetbook/internal/config"
	"budgetbook/internal/services"
	"budgetbook/internal/storage"
	"budgetbook/internal/store"
	"budgetbook/internal/store/google"
	"budgetbook/internal/store/memory"
	"budgetbook/internal/store/rpc"
)

var _ services.Outbox = (*storage.SQLiteRepository)(nil)

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ready returns a readiness probe for b. Backends without a probe are
// always ready.
func Ready(b store.Backend) func(ctx context.Context) error {
	if p, ok := b.(Pinger); ok {
		return p.Ping
	}
	return func(context.Context) error { return nil }
}

type BackendType string

const (
	MemoryBackend BackendType = config.BackendMemory
	RPCBackend    BackendType = config.BackendRPC
	SheetsBackend BackendType = config.BackendSheets
	SQLiteBackend BackendType = config.BackendSQLite
)

func (t BackendType) IsValid() bool {
	return slices.Contains([]BackendType{MemoryBackend, RPCBackend, SheetsBackend, SQLiteBackend}, t)
}

func (t BackendType) String() string { return string(t) }

// CleanupFunc releases the resources of a backend.
type CleanupFunc func() error

// Result is a ready backend and its cleanup, which may be nil.
type Result struct {
	Type    BackendType
	Backend store.Backend
	Cleanup CleanupFunc
}

// Close runs Cleanup when set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends from the application config.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

func (f *Factory) Create(ctx context.Context, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is nil")
	}
	t := BackendType(cfg.DataBackend)
	switch t {
	case MemoryBackend:
		return f.createMemory(cfg)
	case RPCBackend:
		return f.createRPC(ctx, cfg)
	case SheetsBackend:
		return f.createSheets(ctx, cfg)
	case SQLiteBackend:
		return f.createSQLite(cfg)
	}
	return nil, fmt.Errorf("unsupported backend type: %s", cfg.DataBackend)
}

func (f *Factory) createMemory(cfg *config.Config) (*Result, error) {
	s, err := memory.NewFromFile(cfg.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", cfg.SeedFile, "dates", len(s.Dates()))
	return &Result{Type: MemoryBackend, Backend: s}, nil
}

// NewRPCClient builds the remote store client. Calls carry, in order of
// preference, the caller's own ID token, the static token, or an ID token
// minted for RPC_AUDIENCE.
func NewRPCClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*rpc.Client, error) {
	var ts oauth2.TokenSource
	switch {
	case cfg.RPCStaticToken != "":
		ts = rpc.StaticToken(cfg.RPCStaticToken)
	case cfg.RPCAudience != "":
		creds, err := serviceAccountJSON(cfg)
		if err != nil {
			return nil, err
		}
		if ts, err = auth.ServiceTokenSource(ctx, cfg.RPCAudience, creds); err != nil {
			return nil, err
		}
	}
	opts := []rpc.Option{
		rpc.WithHTTPClient(&http.Client{Timeout: cfg.RPCTimeout}),
		rpc.WithLogger(logger),
	}
	if ts != nil {
		opts = append(opts, rpc.WithTokenSource(ts))
	}
	return rpc.New(cfg.RPCURL, opts...)
}

func (f *Factory) createRPC(ctx context.Context, cfg *config.Config) (*Result, error) {
	cli, err := NewRPCClient(ctx, cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("rpc backend: %w", err)
	}
	f.logger.Info("Initialized RPC backend", "url", cfg.RPCURL,
		"static_token", cfg.RPCStaticToken != "", "audience", cfg.RPCAudience)
	return &Result{Type: RPCBackend, Backend: cli}, nil
}

func (f *Factory) createSheets(ctx context.Context, cfg *config.Config) (*Result, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		TransactionsSheet:  cfg.TransactionsSheetName,
		CategoriesSheet:    cfg.CategoriesSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets backend", "spreadsheet", cfg.GoogleSpreadsheetID)
	return &Result{Type: SheetsBackend, Backend: cli}, nil
}

// createSQLite stores locally and, when AMQP is configured, announces each
// saved row to the sync worker. A broker that cannot be reached is logged
// and the backend runs without publishing.
func (f *Factory) createSQLite(cfg *config.Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	var publisher services.SyncPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			publisher = client
			f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	s := services.NewSyncingStore(repo, publisher, f.logger)
	f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath, "amqp_enabled", publisher != nil)
	return &Result{Type: SQLiteBackend, Backend: s, Cleanup: s.Close}, nil
}

func serviceAccountJSON(cfg *config.Config) ([]byte, error) {
	if cfg.GoogleServiceAccountJSON != "" {
		return []byte(cfg.GoogleServiceAccountJSON), nil
	}
	if cfg.GoogleServiceAccountFile != "" {
		b, err := os.ReadFile(cfg.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account: %w", err)
		}
		return b, nil
	}
	return nil, nil
}

// ErrNoRemote is returned by Remote when neither RPC_URL nor
// GOOGLE_SPREADSHEET_ID is configured.
var ErrNoRemote = errors.New("no remote store configured")

// Remote builds the store the sync worker mirrors into: the RPC endpoint
// when RPC_URL is set, otherwise the spreadsheet.
func (f *Factory) Remote(ctx context.Context, cfg *config.Config) (*Result, error) {
	switch {
	case cfg.RPCURL != "":
		return f.createRPC(ctx, cfg)
	case cfg.GoogleSpreadsheetID != "":
		return f.createSheets(ctx, cfg)
	}
	return nil, ErrNoRemote
}
