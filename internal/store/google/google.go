package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetbook/internal/core"
	"budgetbook/internal/store"
)

var _ store.Backend = (*Client)(nil)

// Config names the spreadsheet and how to authenticate against it.
type Config struct {
	SpreadsheetID      string
	TransactionsSheet  string
	CategoriesSheet    string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	categoriesSheet   string
	logger            *slog.Logger
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = slog.Default()
	}
	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newWithService(svc, cfg, logger), nil
}

func newWithService(svc *gsheet.Service, cfg Config, logger *slog.Logger) *Client {
	if cfg.TransactionsSheet == "" {
		cfg.TransactionsSheet = "Transactions"
	}
	if cfg.CategoriesSheet == "" {
		cfg.CategoriesSheet = "Categories"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:               svc,
		spreadsheetID:     cfg.SpreadsheetID,
		transactionsSheet: cfg.TransactionsSheet,
		categoriesSheet:   cfg.CategoriesSheet,
		logger:            logger,
	}
}

// newSheetsService uses inline JSON, then the file path, then
// GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config, logger *slog.Logger) (*gsheet.Service, error) {
	credsFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if cfg.ServiceAccountJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case cfg.ServiceAccountJSON != "":
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case credsFile != "":
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	logger.InfoContext(ctx, "Creating Google Sheets service", "credentials_size", len(credentialsJSON))
	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) read(ctx context.Context, rng string) ([][]any, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", store.ErrUpstream, rng, err)
	}
	return resp.Values, nil
}

// FetchMonth scans the transactions sheet and keeps the rows of ym.
func (c *Client) FetchMonth(ctx context.Context, ym core.YearMonth) (core.MonthlyRawStore, error) {
	values, err := c.read(ctx, c.transactionsSheet+"!A1:Z")
	if err != nil {
		return nil, err
	}
	entries, skipped := parseTransactions(values, ym)
	if skipped > 0 {
		c.logger.DebugContext(ctx, "Skipped transaction rows without a date", "sheet", c.transactionsSheet, "count", skipped)
	}
	return core.GroupByDate(entries), nil
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	values, err := c.read(ctx, c.categoriesSheet+"!A1:C")
	if err != nil {
		return nil, err
	}
	cats, _ := parseCategories(values)
	return cats, nil
}

// FetchBudget derives the month budget from the category sheet.
func (c *Client) FetchBudget(ctx context.Context, _ core.YearMonth) (core.BudgetMap, error) {
	cats, err := c.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return core.BudgetFromCategories(cats), nil
}

// SaveTransactions appends one row per transaction.
func (c *Client) SaveTransactions(ctx context.Context, date core.Date, txs []core.Transaction) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	rows := make([][]any, 0, len(txs))
	for _, tx := range txs {
		tx.Date = date
		if err := tx.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}
		rows = append(rows, transactionRow(tx))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	rng := c.transactionsSheet + "!A:E"
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("%w: append to %s: %v", store.ErrUpstream, rng, err)
	}
	return len(rows), nil
}

// SaveBudget rewrites the budget cell of known categories and appends new
// ones.
func (c *Client) SaveBudget(ctx context.Context, categories []core.Category) error {
	for _, cat := range categories {
		if err := cat.Validate(); err != nil {
			return err
		}
	}
	values, err := c.read(ctx, c.categoriesSheet+"!A1:C")
	if err != nil {
		return err
	}
	_, rowOf := parseCategories(values)

	var (
		updates []*gsheet.ValueRange
		appends [][]any
	)
	for _, cat := range categories {
		if row, ok := rowOf[categoryRowKey(cat.Name, cat.Type)]; ok {
			updates = append(updates, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!C%d", c.categoriesSheet, row),
				Values: [][]any{{cat.MonthlyBudget.Float64()}},
			})
			continue
		}
		appends = append(appends, []any{cat.Name, cat.Type.Label(), cat.MonthlyBudget.Float64()})
	}

	if len(updates) > 0 {
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED", Data: updates}
		if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("%w: update budgets: %v", store.ErrUpstream, err)
		}
	}
	if len(appends) > 0 {
		rng := c.categoriesSheet + "!A:C"
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: appends}).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%w: append categories: %v", store.ErrUpstream, err)
		}
	}
	c.logger.InfoContext(ctx, "Budget saved", "updated", len(updates), "added", len(appends))
	return nil
}
